package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"lead-console/internal/metrics"
	"lead-console/internal/models"
	"lead-console/internal/parser"
	"lead-console/internal/utils"
)

// Action namespaces.
const (
	nsHome   = "home"
	nsDB     = "db"
	nsRecord = "rec"
	nsAppt   = "appt"
	nsCaller = "caller"
)

// Console turns operator events into engine calls and replies. It is the only
// component that reads or writes the pending-input slot.
type Console struct {
	sessions  *SessionStore
	datasets  *DatasetStore
	engine    *DispositionEngine
	scheduler *Scheduler
	callers   *CallerService
	exports   *ExportService
	location  *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

func NewConsole(sessions *SessionStore, datasets *DatasetStore, engine *DispositionEngine, scheduler *Scheduler,
	callers *CallerService, exports *ExportService, location *time.Location, logger *zap.Logger) *Console {
	if location == nil {
		location = time.UTC
	}
	return &Console{
		sessions:  sessions,
		datasets:  datasets,
		engine:    engine,
		scheduler: scheduler,
		callers:   callers,
		exports:   exports,
		location:  location,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle processes one event. chatID is where reminders booked from this event
// are delivered. Errors never escape: they become notice replies.
func (c *Console) Handle(ctx context.Context, operatorID int64, chatID string, event models.Event) models.Reply {
	metrics.EventsTotal.WithLabelValues(string(event.Kind)).Inc()
	log := c.logger.With(zap.Int64("operator_id", operatorID), zap.String("kind", string(event.Kind)))

	var reply models.Reply
	var err error
	switch event.Kind {
	case models.EventCommandStart:
		reply, err = c.start(operatorID)
	case models.EventButtonPressed:
		log = log.With(zap.String("action", event.Action))
		reply, err = c.press(ctx, operatorID, event.Action)
	case models.EventTextReceived:
		reply, err = c.text(operatorID, chatID, event.Text)
	case models.EventDocumentReceived:
		reply, err = c.document(operatorID, event.Document)
	default:
		err = fmt.Errorf("%w: event kind %q", models.ErrInvalidActionToken, event.Kind)
	}
	if err != nil {
		return c.fail(log, err)
	}
	return reply
}

func (c *Console) fail(log *zap.Logger, err error) models.Reply {
	text, known := errorMessage(err)
	switch {
	case models.IsNotFound(err) || errors.Is(err, models.ErrInvalidActionToken):
		metrics.NotFoundTotal.Inc()
		log.Info("stale or unknown action", zap.Error(err))
	case known:
		log.Debug("request rejected", zap.Error(err))
	default:
		log.Error("event failed", zap.Error(err))
	}
	return models.Reply{
		Text:    text,
		Notice:  true,
		Buttons: []models.Button{homeButton()},
	}
}

func errorMessage(err error) (string, bool) {
	switch {
	case models.IsNotFound(err), errors.Is(err, models.ErrInvalidActionToken):
		return "Élément introuvable : il a peut-être été supprimé.", true
	case errors.Is(err, models.ErrInvalidDatasetName):
		return "Nom de base invalide : lettres, chiffres et _ uniquement (40 caractères max).", true
	case errors.Is(err, models.ErrDatasetExists):
		return "Cette base existe déjà.", true
	case errors.Is(err, models.ErrLastDataset):
		return "Impossible de supprimer la dernière base.", true
	case errors.Is(err, models.ErrUnsupportedExtension):
		return "Format non pris en charge. Formats acceptés : .txt, .csv, .json, .jsonl.", true
	case errors.Is(err, models.ErrInvalidPhone):
		return "Numéro invalide. Exemple : 06 12 34 56 78.", true
	case errors.Is(err, models.ErrNoActiveCaller):
		return "Un appelant actif est nécessaire.", true
	case errors.Is(err, models.ErrInvalidCallerName):
		return "Nom d'appelant invalide (40 caractères max).", true
	case errors.Is(err, models.ErrAppointmentInPast):
		return "Cette date est déjà passée.", true
	case errors.Is(err, models.ErrAppointmentSent):
		return "Ce rappel a déjà été envoyé.", true
	case errors.Is(err, models.ErrEmptyNote):
		return "La note est vide.", true
	case errors.Is(err, ErrInvalidDateTime):
		return "Format attendu : JJ/MM/AAAA HH:MM, JJ/MM HH:MM ou HH:MM.", true
	case errors.Is(err, ErrUnsupportedFormat):
		return "Format d'export inconnu (csv ou xlsx).", true
	default:
		return "Une erreur est survenue, réessayez.", false
	}
}

// activeDataset returns the operator's dataset, falling back to the default
// one (or the first) when the stored one is gone.
func (c *Console) activeDataset(operatorID int64) (string, error) {
	session, err := c.sessions.View(operatorID)
	if err != nil {
		return "", err
	}
	if session.ActiveDataset != "" {
		if _, err := c.datasets.Open(session.ActiveDataset); err == nil {
			return session.ActiveDataset, nil
		} else if !models.IsNotFound(err) {
			return "", err
		}
	}

	if err := c.datasets.EnsureDefault(); err != nil {
		return "", err
	}
	names, err := c.datasets.List()
	if err != nil {
		return "", err
	}
	name := names[0]
	for _, n := range names {
		if n == DefaultDatasetName {
			name = n
			break
		}
	}
	err = c.sessions.Update(operatorID, func(s *models.OperatorSession) error {
		s.ActiveDataset = name
		return nil
	})
	return name, err
}

func (c *Console) setPending(operatorID int64, pending *models.PendingInput) error {
	return c.sessions.Update(operatorID, func(s *models.OperatorSession) error {
		s.Pending = pending
		return nil
	})
}

func (c *Console) start(operatorID int64) (models.Reply, error) {
	if err := c.setPending(operatorID, nil); err != nil {
		return models.Reply{}, err
	}
	return c.home(operatorID)
}

func (c *Console) press(ctx context.Context, operatorID int64, raw string) (models.Reply, error) {
	token, err := models.ParseActionToken(raw)
	if err != nil {
		return models.Reply{}, err
	}
	// Any button abandons a pending text prompt.
	if err := c.setPending(operatorID, nil); err != nil {
		return models.Reply{}, err
	}

	switch token.Namespace {
	case nsHome:
		return c.pressHome(operatorID, token)
	case nsDB:
		return c.pressDataset(operatorID, token)
	case nsRecord:
		return c.pressRecord(operatorID, token)
	case nsAppt:
		return c.pressAppointment(operatorID, token)
	case nsCaller:
		return c.pressCaller(operatorID, token)
	}
	return models.Reply{}, unknownAction(token)
}

func unknownAction(token models.ActionToken) error {
	return fmt.Errorf("%w: %s", models.ErrInvalidActionToken, token.String())
}

func (c *Console) pressHome(operatorID int64, token models.ActionToken) (models.Reply, error) {
	switch token.Verb {
	case "show":
		return c.home(operatorID)
	case "db":
		return c.datasetMenu(operatorID, "")
	case "search":
		dataset, err := c.activeDataset(operatorID)
		if err != nil {
			return models.Reply{}, err
		}
		if err := c.setPending(operatorID, &models.PendingInput{Kind: models.PendingSearchNumber, Dataset: dataset}); err != nil {
			return models.Reply{}, err
		}
		return prompt(fmt.Sprintf("Envoyez le numéro à rechercher dans la base %s.", dataset)), nil
	case "missed":
		return c.missedList(operatorID)
	case "notes":
		return c.notesList(operatorID)
	case "callers":
		return c.callerList(operatorID, "")
	}
	return models.Reply{}, unknownAction(token)
}

func (c *Console) pressDataset(operatorID int64, token models.ActionToken) (models.Reply, error) {
	switch token.Verb {
	case "list":
		return c.datasetMenu(operatorID, "")
	case "new":
		if err := c.setPending(operatorID, &models.PendingInput{Kind: models.PendingDatasetName}); err != nil {
			return models.Reply{}, err
		}
		return prompt("Envoyez le nom de la nouvelle base (lettres, chiffres et _, 40 caractères max)."), nil
	case "open":
		if _, err := c.datasets.Open(token.Dataset); err != nil {
			return models.Reply{}, err
		}
		err := c.sessions.Update(operatorID, func(s *models.OperatorSession) error {
			s.ActiveDataset = token.Dataset
			return nil
		})
		if err != nil {
			return models.Reply{}, err
		}
		return c.datasetMenu(operatorID, fmt.Sprintf("Base %s activée.", token.Dataset))
	case "delete":
		ds, err := c.datasets.Open(token.Dataset)
		if err != nil {
			return models.Reply{}, err
		}
		return models.Reply{
			Text: fmt.Sprintf("Supprimer la base %s et ses %d fiches ? Les rendez-vous associés seront annulés.", ds.Name, ds.RecordCount),
			Buttons: []models.Button{
				{Label: "🗑 Confirmer la suppression", Action: models.Action(nsDB, "purge", ds.Name)},
				{Label: "Annuler", Action: models.Action(nsHome, "db")},
			},
		}, nil
	case "purge":
		if err := c.datasets.Delete(token.Dataset); err != nil {
			return models.Reply{}, err
		}
		return c.datasetMenu(operatorID, fmt.Sprintf("Base %s supprimée.", token.Dataset))
	case "import":
		if _, err := c.datasets.Open(token.Dataset); err != nil {
			return models.Reply{}, err
		}
		if err := c.setPending(operatorID, &models.PendingInput{Kind: models.PendingImportTarget, Dataset: token.Dataset}); err != nil {
			return models.Reply{}, err
		}
		return prompt(fmt.Sprintf("Envoyez un fichier (.txt, .csv, .json, .jsonl) ou collez les fiches à importer dans %s.", token.Dataset)), nil
	case "export":
		doc, err := c.exports.Render(token.Dataset, token.Extra)
		if err != nil {
			return models.Reply{}, err
		}
		ds, err := c.datasets.Open(token.Dataset)
		if err != nil {
			return models.Reply{}, err
		}
		return models.Reply{
			Text:     fmt.Sprintf("Export de %s : %d fiches.", ds.Name, ds.RecordCount),
			Document: doc,
			Buttons:  []models.Button{homeButton()},
		}, nil
	}
	return models.Reply{}, unknownAction(token)
}

func (c *Console) pressRecord(operatorID int64, token models.ActionToken) (models.Reply, error) {
	ds, id := token.Dataset, token.RecordID
	if _, err := c.datasets.FindByID(ds, id); err != nil {
		return models.Reply{}, err
	}

	switch token.Verb {
	case "open":
		return c.recordCard(operatorID, ds, id, "")
	case "call":
		return c.callerPicker(ds, id)
	case "ongoing":
		a, err := c.engine.MarkOngoing(operatorID, ds, id, token.Extra)
		if err != nil {
			return models.Reply{}, err
		}
		return c.recordCard(operatorID, ds, id, fmt.Sprintf("Appel en cours avec %s.", a.CallerName))
	case "treated":
		if err := c.engine.MarkTreated(operatorID, ds, id); err != nil {
			return models.Reply{}, err
		}
		return c.recordCard(operatorID, ds, id, "Fiche marquée comme traitée.")
	case "missed":
		if err := c.engine.MarkMissed(operatorID, ds, id); err != nil {
			return models.Reply{}, err
		}
		return c.recordCard(operatorID, ds, id, "Appel manqué, fiche à rappeler.")
	case "note":
		if err := c.setPending(operatorID, &models.PendingInput{Kind: models.PendingNoteTarget, Dataset: ds, RecordID: id}); err != nil {
			return models.Reply{}, err
		}
		return prompt("Envoyez le texte de la note."), nil
	case "appt":
		if err := c.setPending(operatorID, &models.PendingInput{Kind: models.PendingAppointmentTarget, Dataset: ds, RecordID: id}); err != nil {
			return models.Reply{}, err
		}
		return prompt("Envoyez la date du rendez-vous : JJ/MM/AAAA HH:MM, JJ/MM HH:MM ou HH:MM."), nil
	case "appts":
		return c.appointmentList(ds, id, "")
	case "qr":
		return c.dialQR(ds, id)
	}
	return models.Reply{}, unknownAction(token)
}

func (c *Console) pressAppointment(operatorID int64, token models.ActionToken) (models.Reply, error) {
	if token.Verb != "cancel" {
		return models.Reply{}, unknownAction(token)
	}
	appointment, err := c.scheduler.Cancel(token.Extra)
	if err != nil {
		return models.Reply{}, err
	}
	return c.appointmentList(appointment.DatasetName, appointment.RecordID, "Rendez-vous annulé.")
}

// Caller actions carry the caller id in the third token part.
func (c *Console) pressCaller(operatorID int64, token models.ActionToken) (models.Reply, error) {
	switch token.Verb {
	case "list":
		return c.callerList(operatorID, "")
	case "new":
		if err := c.setPending(operatorID, &models.PendingInput{Kind: models.PendingCallerName}); err != nil {
			return models.Reply{}, err
		}
		return prompt("Envoyez le nom du nouvel appelant."), nil
	case "off":
		caller, err := c.callers.Get(token.Dataset)
		if err != nil {
			return models.Reply{}, err
		}
		if err := c.callers.Deactivate(caller.ID); err != nil {
			return models.Reply{}, err
		}
		return c.callerList(operatorID, fmt.Sprintf("%s est désactivé.", caller.Name))
	}
	return models.Reply{}, unknownAction(token)
}

func (c *Console) text(operatorID int64, chatID, text string) (models.Reply, error) {
	text = strings.TrimSpace(text)
	session, err := c.sessions.View(operatorID)
	if err != nil {
		return models.Reply{}, err
	}

	pending := session.Pending
	if pending == nil {
		if _, ok := utils.NormalizePhone(text); ok {
			dataset, err := c.activeDataset(operatorID)
			if err != nil {
				return models.Reply{}, err
			}
			return c.search(operatorID, dataset, text)
		}
		return c.home(operatorID)
	}

	var reply models.Reply
	switch pending.Kind {
	case models.PendingDatasetName:
		ds, err := c.datasets.Create(text)
		if err != nil {
			return models.Reply{}, err
		}
		err = c.sessions.Update(operatorID, func(s *models.OperatorSession) error {
			s.ActiveDataset = ds.Name
			s.Pending = nil
			return nil
		})
		if err != nil {
			return models.Reply{}, err
		}
		return c.datasetMenu(operatorID, fmt.Sprintf("Base %s créée et activée.", ds.Name))
	case models.PendingImportTarget:
		res := parser.ParseBlocks(text)
		reply, err = c.importResult(pending.Dataset, ".txt", res, int64(len(text)))
	case models.PendingSearchNumber:
		reply, err = c.search(operatorID, pending.Dataset, text)
	case models.PendingNoteTarget:
		if _, err = c.datasets.AddNote(pending.Dataset, pending.RecordID, text); err == nil {
			reply, err = c.recordCard(operatorID, pending.Dataset, pending.RecordID, "Note ajoutée.")
		}
	case models.PendingAppointmentTarget:
		reply, err = c.book(operatorID, chatID, pending, text)
	case models.PendingCallerName:
		var caller *models.Caller
		if caller, err = c.callers.Add(text); err == nil {
			reply, err = c.callerList(operatorID, fmt.Sprintf("Appelant %s ajouté.", caller.Name))
		}
	default:
		err = fmt.Errorf("%w: pending %q", models.ErrInvalidActionToken, pending.Kind)
	}
	if err != nil {
		// Validation errors keep the prompt open so the operator can retry.
		if _, known := errorMessage(err); known && !models.IsNotFound(err) {
			return models.Reply{}, err
		}
		if clearErr := c.setPending(operatorID, nil); clearErr != nil {
			c.logger.Error("failed to clear pending input",
				zap.Int64("operator_id", operatorID),
				zap.String("pending", string(pending.Kind)),
				zap.Error(clearErr))
		}
		return models.Reply{}, err
	}
	if err := c.setPending(operatorID, nil); err != nil {
		return models.Reply{}, err
	}
	return reply, nil
}

func (c *Console) book(operatorID int64, chatID string, pending *models.PendingInput, text string) (models.Reply, error) {
	at, err := ParseAppointmentTime(text, c.now(), c.location)
	if err != nil {
		return models.Reply{}, err
	}
	appointment, err := c.scheduler.Schedule(operatorID, pending.Dataset, pending.RecordID, at, chatID)
	if err != nil {
		return models.Reply{}, err
	}
	notice := fmt.Sprintf("Rendez-vous fixé le %s, rappel à %s.",
		appointment.At.In(c.location).Format("02/01/2006 à 15:04"),
		appointment.RemindAt.In(c.location).Format("15:04"))
	return c.recordCard(operatorID, pending.Dataset, pending.RecordID, notice)
}

func (c *Console) search(operatorID int64, dataset, query string) (models.Reply, error) {
	records, err := c.datasets.FindByPhone(dataset, query)
	if err != nil {
		return models.Reply{}, err
	}
	switch len(records) {
	case 0:
		return models.Reply{
			Text:    fmt.Sprintf("Aucune fiche pour ce numéro dans la base %s.", dataset),
			Buttons: []models.Button{{Label: "🔎 Nouvelle recherche", Action: models.Action(nsHome, "search")}, homeButton()},
		}, nil
	case 1:
		return c.recordCard(operatorID, dataset, records[0].ID, "")
	}
	return recordList(fmt.Sprintf("%d fiches correspondent :", len(records)), dataset, records), nil
}

func (c *Console) document(operatorID int64, doc *models.Document) (models.Reply, error) {
	if doc == nil {
		return models.Reply{}, fmt.Errorf("%w: empty document", models.ErrInvalidActionToken)
	}
	session, err := c.sessions.View(operatorID)
	if err != nil {
		return models.Reply{}, err
	}
	dataset := ""
	if session.Pending != nil && session.Pending.Kind == models.PendingImportTarget {
		dataset = session.Pending.Dataset
	} else if dataset, err = c.activeDataset(operatorID); err != nil {
		return models.Reply{}, err
	}

	res, err := parser.ParseFile(doc.FileName, doc.Data)
	if err != nil {
		return models.Reply{}, err
	}
	reply, err := c.importResult(dataset, strings.ToLower(filepath.Ext(doc.FileName)), res, int64(len(doc.Data)))
	if err != nil {
		return models.Reply{}, err
	}
	if err := c.setPending(operatorID, nil); err != nil {
		return models.Reply{}, err
	}
	return reply, nil
}

func (c *Console) importResult(dataset, ext string, res parser.Result, size int64) (models.Reply, error) {
	added, err := c.datasets.Import(dataset, res.Records, size)
	if err != nil {
		return models.Reply{}, err
	}
	format := strings.TrimPrefix(ext, ".")
	metrics.RecordsImportedTotal.WithLabelValues(format).Add(float64(added))
	metrics.BlocksRejectedTotal.WithLabelValues(format).Add(float64(len(res.Rejected)))

	ds, err := c.datasets.Open(dataset)
	if err != nil {
		return models.Reply{}, err
	}
	text := fmt.Sprintf("%d fiche(s) importée(s) dans %s, %d bloc(s) ignoré(s).\nTotal : %d fiches, %d numéros.",
		added, dataset, len(res.Rejected), ds.RecordCount, ds.PhoneCount)
	return models.Reply{
		Text: text,
		Buttons: []models.Button{
			{Label: "📥 Importer encore", Action: models.Action(nsDB, "import", dataset)},
			homeButton(),
		},
	}, nil
}
