package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"lead-console/internal/models"
)

const chat = "33600000000@s.whatsapp.net"

func press(env *testEnv, action string) models.Reply {
	return env.console.Handle(context.Background(), operator, chat, models.Event{Kind: models.EventButtonPressed, Action: action})
}

func say(env *testEnv, text string) models.Reply {
	return env.console.Handle(context.Background(), operator, chat, models.Event{Kind: models.EventTextReceived, Text: text})
}

func actions(reply models.Reply) []string {
	out := make([]string, 0, len(reply.Buttons))
	for _, b := range reply.Buttons {
		out = append(out, b.Action)
	}
	return out
}

func TestConsoleHome(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "A"}, &models.LeadRecord{LastName: "B"})
	require.NoError(t, env.engine.MarkMissed(operator, DefaultDatasetName, "1"))
	require.NoError(t, env.engine.MarkTreated(operator, DefaultDatasetName, "2"))

	reply := env.console.Handle(context.Background(), operator, chat, models.Event{Kind: models.EventCommandStart})
	assert.False(t, reply.Notice)
	assert.Contains(t, reply.Text, "Base active : default")
	assert.Contains(t, reply.Text, "Clients traités aujourd’hui : 1")
	assert.Contains(t, reply.Text, "Clients à rappeler : 1")
	assert.Equal(t, []string{"home:db", "home:search", "home:missed", "home:notes", "home:callers"}, actions(reply))
	assert.Equal(t, "📵 Appels manqués (1)", reply.Buttons[2].Label)
}

func TestConsoleUnknownAction(t *testing.T) {
	env := newTestEnv(t)

	for _, action := range []string{"nope", "zz:top", "rec:open:default:99", "db:open:missing"} {
		reply := press(env, action)
		assert.True(t, reply.Notice, action)
		assert.Contains(t, reply.Text, "introuvable", action)
	}
}

func TestConsoleCallFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "DUPONT", FirstName: "Jean", Mobile: "0612345678"})

	reply := press(env, "rec:call:default:1")
	assert.Contains(t, reply.Text, "Aucun appelant actif")

	caller := env.caller(t, "Alice")
	reply = press(env, "rec:call:default:1")
	assert.Equal(t, "rec:ongoing:default:1:"+caller.ID, reply.Buttons[0].Action)

	reply = press(env, reply.Buttons[0].Action)
	assert.False(t, reply.Notice)
	assert.Contains(t, reply.Text, "Appel en cours avec Alice")
	assert.Contains(t, reply.Text, "État : En cours")
	assert.Contains(t, reply.Text, "06 12 34 56 78")
	assert.NotContains(t, actions(reply), "rec:call:default:1")

	reply = press(env, "rec:treated:default:1")
	assert.Contains(t, reply.Text, "État : Traité")
	assert.Contains(t, reply.Text, "Dernier appelant : Alice")

	stats, err := env.engine.Today(operator)
	require.NoError(t, err)
	assert.Equal(t, models.DailyStats{Ongoing: 1, Treated: 1}, stats)
}

func TestConsoleSearch(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t,
		&models.LeadRecord{LastName: "A", Mobile: "0612345678"},
		&models.LeadRecord{LastName: "B", VoIP: "0612345678"},
		&models.LeadRecord{LastName: "C", Mobile: "0711111111"},
	)

	reply := press(env, "home:search")
	assert.Contains(t, reply.Text, "numéro")

	reply = say(env, "pas un numéro")
	assert.True(t, reply.Notice)
	assert.Contains(t, reply.Text, "Numéro invalide")

	// The prompt survives a validation error.
	reply = say(env, "+33 7 11 11 11 11")
	assert.Contains(t, reply.Text, "👤 C")

	// Without a prompt a phone number still searches.
	reply = say(env, "06.12.34.56.78")
	assert.Contains(t, reply.Text, "2 fiches")
	assert.Equal(t, []string{"rec:open:default:1", "rec:open:default:2", "home:show"}, actions(reply))

	reply = say(env, "bonjour")
	assert.Contains(t, reply.Text, "Bienvenue")
}

func TestConsoleDatasetFlow(t *testing.T) {
	env := newTestEnv(t)

	press(env, "db:new")
	reply := say(env, "bad name!")
	assert.True(t, reply.Notice)
	reply = say(env, "campagne_mars")
	assert.Contains(t, reply.Text, "Base campagne_mars créée et activée")

	reply = press(env, "db:import:campagne_mars")
	assert.Contains(t, reply.Text, "campagne_mars")
	reply = say(env, "DUPONT - Jean\nMobile: 06 12 34 56 78\n\nN/A\n\nMARTIN - Claire\nEmail: c@m.fr")
	assert.Contains(t, reply.Text, "2 fiche(s) importée(s) dans campagne_mars, 1 bloc(s) ignoré(s)")

	reply = env.console.Handle(context.Background(), operator, chat, models.Event{
		Kind: models.EventDocumentReceived,
		Document: &models.Document{
			FileName: "leads.jsonl",
			Data:     []byte(`{"last_name":"DURAND","mobile":"0711223344"}` + "\n"),
		},
	})
	assert.Contains(t, reply.Text, "1 fiche(s) importée(s) dans campagne_mars")

	reply = env.console.Handle(context.Background(), operator, chat, models.Event{
		Kind:     models.EventDocumentReceived,
		Document: &models.Document{FileName: "leads.pdf", Data: []byte("%PDF")},
	})
	assert.True(t, reply.Notice)
	assert.Contains(t, reply.Text, "Format non pris en charge")

	reply = press(env, "db:export:campagne_mars::csv")
	require.NotNil(t, reply.Document)
	assert.True(t, strings.HasPrefix(reply.Document.FileName, "campagne_mars_"))
	assert.Contains(t, reply.Text, "3 fiches")

	reply = press(env, "db:delete:campagne_mars")
	assert.Equal(t, "db:purge:campagne_mars", reply.Buttons[0].Action)
	reply = press(env, "db:purge:campagne_mars")
	assert.Contains(t, reply.Text, "Base campagne_mars supprimée")

	reply = press(env, "home:show")
	assert.Contains(t, reply.Text, "Base active : default")

	reply = press(env, "db:purge:default")
	assert.True(t, reply.Notice)
	assert.Contains(t, reply.Text, "dernière base")
}

func TestConsoleNotesAndAppointments(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "DUPONT", Mobile: "0612345678"})

	press(env, "rec:note:default:1")
	reply := say(env, "   ")
	assert.Contains(t, reply.Text, "La note est vide")
	reply = say(env, "rappeler après 18h")
	assert.Contains(t, reply.Text, "Note ajoutée")
	assert.Contains(t, reply.Text, "- rappeler après 18h")

	reply = press(env, "home:notes")
	assert.Contains(t, reply.Text, "rappeler après 18h")

	press(env, "rec:appt:default:1")
	reply = say(env, "demain")
	assert.Contains(t, reply.Text, "Format attendu")
	reply = say(env, "11:30")
	assert.Contains(t, reply.Text, "Rendez-vous fixé le 15/03/2024 à 11:30, rappel à 11:25")
	assert.Contains(t, reply.Text, "Prochain rendez-vous : 15/03/2024 11:30")

	appointments, err := env.scheduler.ListForRecord(DefaultDatasetName, "1")
	require.NoError(t, err)
	require.Len(t, appointments, 1)
	assert.Equal(t, chat, appointments[0].NotifyTarget)

	reply = press(env, "rec:appts:default:1")
	cancel := "appt:cancel:default:1:" + appointments[0].ID
	assert.Contains(t, actions(reply), cancel)
	reply = press(env, cancel)
	assert.Contains(t, reply.Text, "Rendez-vous annulé")
	reply = press(env, cancel)
	assert.True(t, reply.Notice)

	// A time already passed today goes to tomorrow.
	press(env, "rec:appt:default:1")
	env.clock.Advance(time.Hour)
	reply = say(env, "09:00")
	assert.Contains(t, reply.Text, "16/03/2024 à 09:00")
}

func TestConsoleButtonCancelsPrompt(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "DUPONT"})

	press(env, "rec:note:default:1")
	press(env, "home:show")
	reply := say(env, "ceci n'est pas une note")
	assert.Contains(t, reply.Text, "Bienvenue")

	record, err := env.datasets.FindByID(DefaultDatasetName, "1")
	require.NoError(t, err)
	assert.Empty(t, record.Notes)
}

func TestConsoleCallers(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "DUPONT"})

	press(env, "caller:new")
	reply := say(env, "Alice")
	assert.Contains(t, reply.Text, "Appelant Alice ajouté")
	assert.Contains(t, reply.Text, "Alice : 0 en cours, 0 traités aujourd’hui")

	callers, err := env.callers.List(true)
	require.NoError(t, err)
	require.Len(t, callers, 1)
	_, err = env.engine.MarkOngoing(operator, DefaultDatasetName, "1", callers[0].ID)
	require.NoError(t, err)

	reply = press(env, "home:callers")
	assert.Contains(t, reply.Text, "Alice : 1 en cours")

	reply = press(env, "caller:off:"+callers[0].ID)
	assert.Contains(t, reply.Text, "Alice est désactivé")
	assert.Contains(t, reply.Text, "Alice (inactif)")

	ongoing, _, err := env.engine.CallerCounts(operator, callers[0].ID)
	require.NoError(t, err)
	assert.Zero(t, ongoing)
}

func TestConsoleMissedList(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "A"}, &models.LeadRecord{LastName: "B"}, &models.LeadRecord{LastName: "C"})
	require.NoError(t, env.engine.MarkMissed(operator, DefaultDatasetName, "3"))
	require.NoError(t, env.engine.MarkMissed(operator, DefaultDatasetName, "1"))

	reply := press(env, "home:missed")
	assert.Equal(t, []string{"rec:open:default:1", "rec:open:default:3", "home:show"}, actions(reply))
}

func TestConsoleDialQR(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, &models.LeadRecord{LastName: "A", Mobile: "0612345678"})

	reply := press(env, "rec:qr:default:1")
	require.NotNil(t, reply.Document)
	assert.Equal(t, "image/png", reply.Document.ContentType)
	assert.NotEmpty(t, reply.Document.Data)
}

// failingSaveRepository rejects every save once failSave is set.
type failingSaveRepository struct {
	models.SessionRepository
	failSave bool
}

func (r *failingSaveRepository) Save(session *models.OperatorSession) error {
	if r.failSave {
		return errors.New("session store unavailable")
	}
	return r.SessionRepository.Save(session)
}

func TestClearingPendingFailureIsLogged(t *testing.T) {
	env := newTestEnv(t)
	core, logs := observer.New(zap.ErrorLevel)
	env.console.logger = zap.New(core)

	repo := &failingSaveRepository{SessionRepository: env.sessionRepo}
	env.sessions.repo = repo
	require.NoError(t, env.sessions.Update(operator, func(s *models.OperatorSession) error {
		s.Pending = &models.PendingInput{Kind: models.PendingNoteTarget, Dataset: DefaultDatasetName, RecordID: "99"}
		return nil
	}))

	repo.failSave = true
	reply := say(env, "rappeler demain")
	assert.True(t, reply.Notice)

	cleared := logs.FilterMessage("failed to clear pending input")
	require.Equal(t, 1, cleared.Len())
	assert.Equal(t, string(models.PendingNoteTarget), cleared.All()[0].ContextMap()["pending"])
}
