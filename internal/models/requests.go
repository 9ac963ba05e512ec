package models

type WebhookRequest struct {
	OperatorID int64  `json:"operator_id" example:"42" swagger:"required" description:"Chat user id of the operator"`
	ChatID     string `json:"chat_id" example:"33612345678@s.whatsapp.net" description:"Destination used for reminders"`
	Event      Event  `json:"event" swagger:"required"`
}

type ExportRequest struct {
	Dataset string `json:"dataset"`
	Format  string `json:"format" example:"csv" description:"csv or xlsx"`
	Upload  bool   `json:"upload" description:"Upload the export to S3 and return its URL"`
}
