package services

import (
	"fmt"
	"strings"

	"lead-console/internal/models"
	"lead-console/internal/utils"
)

// listLimit caps the records shown as buttons in one reply.
const listLimit = 20

var stateLabels = map[models.Disposition]string{
	models.DispositionIdle:    "À appeler",
	models.DispositionOngoing: "En cours",
	models.DispositionTreated: "Traité",
	models.DispositionMissed:  "Manqué",
}

func homeButton() models.Button {
	return models.Button{Label: "🏠 Accueil", Action: models.Action(nsHome, "show")}
}

func prompt(text string) models.Reply {
	return models.Reply{Text: text, Buttons: []models.Button{{Label: "Annuler", Action: models.Action(nsHome, "show")}}}
}

func withNotice(notice, text string) string {
	if notice == "" {
		return text
	}
	return notice + "\n\n" + text
}

func (c *Console) home(operatorID int64) (models.Reply, error) {
	dataset, err := c.activeDataset(operatorID)
	if err != nil {
		return models.Reply{}, err
	}
	stats, err := c.engine.Today(operatorID)
	if err != nil {
		return models.Reply{}, err
	}
	missed, err := c.engine.Records(operatorID, dataset, models.DispositionMissed)
	if err != nil {
		return models.Reply{}, err
	}

	text := fmt.Sprintf("Bienvenue.\nBase active : %s\n\n📞 Clients traités aujourd’hui : %d\n⏰ Clients à rappeler : %d\n\nChoisissez une action :",
		dataset, stats.Treated, len(missed))
	return models.Reply{
		Text: text,
		Buttons: []models.Button{
			{Label: "🗂 Gérer les bases", Action: models.Action(nsHome, "db")},
			{Label: "🔎 Rechercher une fiche", Action: models.Action(nsHome, "search")},
			{Label: fmt.Sprintf("📵 Appels manqués (%d)", len(missed)), Action: models.Action(nsHome, "missed")},
			{Label: "📝 Notes", Action: models.Action(nsHome, "notes")},
			{Label: "👥 Appelants", Action: models.Action(nsHome, "callers")},
		},
	}, nil
}

func (c *Console) datasetMenu(operatorID int64, notice string) (models.Reply, error) {
	active, err := c.activeDataset(operatorID)
	if err != nil {
		return models.Reply{}, err
	}
	names, err := c.datasets.List()
	if err != nil {
		return models.Reply{}, err
	}

	var b strings.Builder
	b.WriteString("Bases disponibles :\n")
	var buttons []models.Button
	for _, name := range names {
		ds, err := c.datasets.Open(name)
		if err != nil {
			return models.Reply{}, err
		}
		marker := "•"
		if name == active {
			marker = "✅"
		}
		fmt.Fprintf(&b, "%s %s : %d fiches, %d numéros\n", marker, name, ds.RecordCount, ds.PhoneCount)
		if name != active {
			buttons = append(buttons, models.Button{Label: "Ouvrir " + name, Action: models.Action(nsDB, "open", name)})
		}
	}
	buttons = append(buttons,
		models.Button{Label: "➕ Nouvelle base", Action: models.Action(nsDB, "new")},
		models.Button{Label: "📥 Importer dans " + active, Action: models.Action(nsDB, "import", active)},
		models.Button{Label: "📤 Export CSV", Action: models.Action(nsDB, "export", active, "", "csv")},
		models.Button{Label: "📤 Export Excel", Action: models.Action(nsDB, "export", active, "", "xlsx")},
		models.Button{Label: "🗑 Supprimer " + active, Action: models.Action(nsDB, "delete", active)},
		homeButton(),
	)
	return models.Reply{Text: withNotice(notice, strings.TrimRight(b.String(), "\n")), Buttons: buttons}, nil
}

func (c *Console) recordCard(operatorID int64, dataset, id, notice string) (models.Reply, error) {
	record, err := c.datasets.FindByID(dataset, id)
	if err != nil {
		return models.Reply{}, err
	}
	state, err := c.engine.StateOf(operatorID, dataset, id)
	if err != nil {
		return models.Reply{}, err
	}
	current, err := c.engine.AssignmentOf(operatorID, dataset, id)
	if err != nil {
		return models.Reply{}, err
	}
	last, err := c.engine.LastCallerOf(operatorID, dataset, id)
	if err != nil {
		return models.Reply{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s (fiche %s, base %s)\n", record.DisplayName(), record.ID, dataset)
	fmt.Fprintf(&b, "État : %s\n", stateLabels[state])
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s : %s\n", label, value)
		}
	}
	line("Mobile", utils.FormatPhone(record.Mobile))
	line("Fixe", utils.FormatPhone(record.VoIP))
	line("Email", record.Email)
	line("Naissance", record.BirthDate)
	line("Adresse", record.Address)
	location := strings.TrimSpace(record.City + " " + record.PostalCode)
	line("Ville", location)
	line("Région", record.Region)
	line("IBAN", record.IBAN)
	line("BIC", record.BIC)
	line("Statut", record.Status)
	if current != nil {
		line("Appelant", current.CallerName)
	}
	if last != nil {
		line("Dernier appelant", fmt.Sprintf("%s (%s)", last.CallerName, last.Since.In(c.location).Format("02/01 15:04")))
	}
	if record.NextAppointmentAt != nil {
		line("Prochain rendez-vous", record.NextAppointmentAt.In(c.location).Format("02/01/2006 15:04"))
	}
	if len(record.Notes) > 0 {
		b.WriteString("Notes :\n")
		for _, note := range record.Notes {
			fmt.Fprintf(&b, "- %s\n", note)
		}
	}

	var buttons []models.Button
	if state != models.DispositionOngoing {
		buttons = append(buttons, models.Button{Label: "📞 Appeler", Action: models.Action(nsRecord, "call", dataset, id)})
	}
	if state != models.DispositionTreated {
		buttons = append(buttons, models.Button{Label: "✅ Traité", Action: models.Action(nsRecord, "treated", dataset, id)})
	}
	if state != models.DispositionMissed {
		buttons = append(buttons, models.Button{Label: "📵 Manqué", Action: models.Action(nsRecord, "missed", dataset, id)})
	}
	buttons = append(buttons,
		models.Button{Label: "📝 Ajouter une note", Action: models.Action(nsRecord, "note", dataset, id)},
		models.Button{Label: "⏰ Rendez-vous", Action: models.Action(nsRecord, "appt", dataset, id)},
		models.Button{Label: "📅 Rendez-vous prévus", Action: models.Action(nsRecord, "appts", dataset, id)},
	)
	if len(record.Phones()) > 0 {
		buttons = append(buttons, models.Button{Label: "📱 QR d'appel", Action: models.Action(nsRecord, "qr", dataset, id)})
	}
	buttons = append(buttons, homeButton())

	return models.Reply{Text: withNotice(notice, strings.TrimRight(b.String(), "\n")), Buttons: buttons}, nil
}

func (c *Console) callerPicker(dataset, id string) (models.Reply, error) {
	callers, err := c.callers.List(true)
	if err != nil {
		return models.Reply{}, err
	}
	if len(callers) == 0 {
		return models.Reply{
			Text:   "Aucun appelant actif. Ajoutez-en un avant de lancer un appel.",
			Notice: true,
			Buttons: []models.Button{
				{Label: "➕ Nouvel appelant", Action: models.Action(nsCaller, "new")},
				homeButton(),
			},
		}, nil
	}
	buttons := make([]models.Button, 0, len(callers)+1)
	for _, caller := range callers {
		buttons = append(buttons, models.Button{
			Label:  caller.Name,
			Action: models.Action(nsRecord, "ongoing", dataset, id, caller.ID),
		})
	}
	buttons = append(buttons, models.Button{Label: "Retour", Action: models.Action(nsRecord, "open", dataset, id)})
	return models.Reply{Text: "Qui passe l'appel ?", Buttons: buttons}, nil
}

func (c *Console) callerList(operatorID int64, notice string) (models.Reply, error) {
	callers, err := c.callers.List(false)
	if err != nil {
		return models.Reply{}, err
	}

	var b strings.Builder
	b.WriteString("Appelants :\n")
	var buttons []models.Button
	if len(callers) == 0 {
		b.WriteString("aucun\n")
	}
	for _, caller := range callers {
		if !caller.Active {
			fmt.Fprintf(&b, "• %s (inactif)\n", caller.Name)
			continue
		}
		ongoing, treated, err := c.engine.CallerCounts(operatorID, caller.ID)
		if err != nil {
			return models.Reply{}, err
		}
		fmt.Fprintf(&b, "• %s : %d en cours, %d traités aujourd’hui\n", caller.Name, ongoing, treated)
		buttons = append(buttons, models.Button{Label: "Désactiver " + caller.Name, Action: models.Action(nsCaller, "off", caller.ID)})
	}
	buttons = append(buttons, models.Button{Label: "➕ Nouvel appelant", Action: models.Action(nsCaller, "new")}, homeButton())
	return models.Reply{Text: withNotice(notice, strings.TrimRight(b.String(), "\n")), Buttons: buttons}, nil
}

func (c *Console) missedList(operatorID int64) (models.Reply, error) {
	dataset, err := c.activeDataset(operatorID)
	if err != nil {
		return models.Reply{}, err
	}
	ids, err := c.engine.Records(operatorID, dataset, models.DispositionMissed)
	if err != nil {
		return models.Reply{}, err
	}
	records, err := c.datasets.Records(dataset, ids)
	if err != nil {
		return models.Reply{}, err
	}
	if len(records) == 0 {
		return models.Reply{Text: "Aucun appel manqué dans " + dataset + ".", Buttons: []models.Button{homeButton()}}, nil
	}
	return recordList(fmt.Sprintf("Appels manqués dans %s (%d) :", dataset, len(records)), dataset, records), nil
}

func (c *Console) notesList(operatorID int64) (models.Reply, error) {
	dataset, err := c.activeDataset(operatorID)
	if err != nil {
		return models.Reply{}, err
	}
	records, err := c.datasets.WithNotes(dataset)
	if err != nil {
		return models.Reply{}, err
	}
	if len(records) == 0 {
		return models.Reply{Text: "Aucune note dans " + dataset + ".", Buttons: []models.Button{homeButton()}}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Notes dans %s :\n", dataset)
	for i, record := range records {
		if i == listLimit {
			fmt.Fprintf(&b, "… et %d autres fiches\n", len(records)-listLimit)
			break
		}
		fmt.Fprintf(&b, "\n%s :\n", record.DisplayName())
		for _, note := range record.Notes {
			fmt.Fprintf(&b, "- %s\n", note)
		}
	}
	reply := recordList("", dataset, records)
	reply.Text = strings.TrimRight(b.String(), "\n")
	return reply, nil
}

func recordList(title, dataset string, records []*models.LeadRecord) models.Reply {
	buttons := make([]models.Button, 0, len(records)+1)
	for i, record := range records {
		if i == listLimit {
			break
		}
		buttons = append(buttons, models.Button{
			Label:  fmt.Sprintf("%s. %s", record.ID, record.DisplayName()),
			Action: models.Action(nsRecord, "open", dataset, record.ID),
		})
	}
	buttons = append(buttons, homeButton())
	return models.Reply{Text: title, Buttons: buttons}
}

func (c *Console) appointmentList(dataset, id, notice string) (models.Reply, error) {
	appointments, err := c.scheduler.ListForRecord(dataset, id)
	if err != nil {
		return models.Reply{}, err
	}

	var b strings.Builder
	var buttons []models.Button
	if len(appointments) == 0 {
		b.WriteString("Aucun rendez-vous pour cette fiche.")
	} else {
		b.WriteString("Rendez-vous :\n")
	}
	for _, a := range appointments {
		at := a.At.In(c.location).Format("02/01/2006 15:04")
		if a.Sent {
			fmt.Fprintf(&b, "• %s (rappel envoyé)\n", at)
			continue
		}
		fmt.Fprintf(&b, "• %s\n", at)
		buttons = append(buttons, models.Button{Label: "Annuler " + at, Action: models.Action(nsAppt, "cancel", dataset, id, a.ID)})
	}
	buttons = append(buttons,
		models.Button{Label: "Retour à la fiche", Action: models.Action(nsRecord, "open", dataset, id)},
		homeButton(),
	)
	return models.Reply{Text: withNotice(notice, strings.TrimRight(b.String(), "\n")), Buttons: buttons}, nil
}

func (c *Console) dialQR(dataset, id string) (models.Reply, error) {
	record, err := c.datasets.FindByID(dataset, id)
	if err != nil {
		return models.Reply{}, err
	}
	phones := record.Phones()
	if len(phones) == 0 {
		return models.Reply{}, fmt.Errorf("%w: record %s has no phone", models.ErrInvalidPhone, id)
	}
	png, err := DialQRCode(phones[0])
	if err != nil {
		return models.Reply{}, err
	}
	return models.Reply{
		Text: "Scannez pour appeler " + utils.FormatPhone(phones[0]),
		Document: &models.Document{
			FileName:    "appel_" + id + ".png",
			ContentType: "image/png",
			Data:        png,
		},
		Buttons: []models.Button{{Label: "Retour à la fiche", Action: models.Action(nsRecord, "open", dataset, id)}},
	}, nil
}
