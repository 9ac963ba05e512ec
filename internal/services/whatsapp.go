package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"lead-console/config"
	"lead-console/internal/models"
	"lead-console/internal/utils"
)

// maxDocumentBytes bounds imported files received over chat.
const maxDocumentBytes = 10 << 20

// inboundTimeout bounds the handling of one chat message.
const inboundTimeout = 30 * time.Second

// WhatsAppService is the chat transport: it turns incoming WhatsApp messages
// into inbound messages and renders replies as text with numbered options.
type WhatsAppService struct {
	client    *whatsmeow.Client
	config    *config.WhatsAppConfig
	manager   *ConnectionManager
	menus     *MenuStore
	connected bool
	mu        sync.RWMutex
	inbound   func(ctx context.Context, msg models.InboundMessage)
	logger    *zap.Logger
}

func NewWhatsAppService(cfg *config.WhatsAppConfig, manager *ConnectionManager, logger *zap.Logger) *WhatsAppService {
	return &WhatsAppService{
		config:  cfg,
		manager: manager,
		menus:   NewMenuStore(),
		logger:  logger.With(zap.String("transport", "whatsapp")),
	}
}

// OnInbound registers the callback for operator messages.
func (s *WhatsAppService) OnInbound(fn func(ctx context.Context, msg models.InboundMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound = fn
}

func (s *WhatsAppService) Connect() error {
	store.DeviceProps.Os = proto.String(s.config.DeviceName)
	store.DeviceProps.PlatformType = waProto.DeviceProps_DESKTOP.Enum()

	dbPath := s.config.SessionDB
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("error creating session directory: %v", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)", dbPath)
	deviceStore, err := sqlstore.New("sqlite", dsn, waLog.Stdout("Database", "WARN", true))
	if err != nil {
		return fmt.Errorf("error creating device store: %v", err)
	}
	// The paired device is kept across restarts.
	device, err := deviceStore.GetFirstDevice()
	if err != nil {
		return fmt.Errorf("error loading device: %v", err)
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", "INFO", true))
	client.AddEventHandler(s.eventHandler)
	s.client = client

	if client.Store.ID == nil {
		s.logger.Info("no paired device, waiting for qr code scan")
		qrChan, _ := client.GetQRChannel(context.Background())
		go func() {
			for evt := range qrChan {
				switch evt.Event {
				case "code":
					s.manager.UpdateQRCode(evt.Code)
				case "timeout":
					s.manager.SetDisconnected("qr code expired")
				}
			}
		}()
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("error connecting: %v", err)
	}
	return nil
}

func (s *WhatsAppService) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil && s.client.IsConnected() && s.client.IsLoggedIn() && s.connected
}

func (s *WhatsAppService) setConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

func (s *WhatsAppService) Disconnect() {
	if s.client != nil {
		s.client.Disconnect()
	}
	s.setConnected(false)
}

func (s *WhatsAppService) eventHandler(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleMessage(v)
	case *events.Connected:
		s.logger.Info("whatsapp connected")
		s.setConnected(true)
		s.manager.SetConnected()
	case *events.Disconnected:
		s.logger.Warn("whatsapp disconnected")
		s.setConnected(false)
		s.manager.SetDisconnected("disconnected")
	case *events.LoggedOut:
		s.logger.Warn("whatsapp logged out")
		s.setConnected(false)
		s.manager.SetDisconnected("logged out")
	}
}

func (s *WhatsAppService) handleMessage(msg *events.Message) {
	if msg.Info.IsFromMe || msg.Info.IsGroup || msg.Info.Chat.Server == types.BroadcastServer {
		return
	}

	in := models.InboundMessage{
		ChatID:      msg.Info.Chat.ToNonAD().String(),
		SenderPhone: msg.Info.Sender.User,
	}
	switch {
	case msg.Message.GetConversation() != "":
		in.Text = msg.Message.GetConversation()
	case msg.Message.GetExtendedTextMessage() != nil:
		in.Text = msg.Message.GetExtendedTextMessage().GetText()
	case msg.Message.GetDocumentMessage() != nil:
		docMsg := msg.Message.GetDocumentMessage()
		if docMsg.GetFileLength() > maxDocumentBytes {
			s.reportInboundFailure(in.ChatID, "Fichier trop volumineux (10 Mo max).")
			return
		}
		data, err := s.client.Download(docMsg)
		if err != nil {
			s.logger.Error("failed to download document", zap.String("message_id", msg.Info.ID), zap.Error(err))
			s.reportInboundFailure(in.ChatID, "Impossible de télécharger le fichier, renvoyez-le.")
			return
		}
		in.Document = &models.Document{
			FileName:    docMsg.GetFileName(),
			ContentType: docMsg.GetMimetype(),
			Data:        data,
		}
	default:
		s.logger.Debug("ignoring unsupported message", zap.String("message_id", msg.Info.ID))
		return
	}

	s.mu.RLock()
	inbound := s.inbound
	s.mu.RUnlock()
	if inbound == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()
	inbound(ctx, in)
}

func (s *WhatsAppService) reportInboundFailure(chatID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()
	if err := s.SendText(ctx, chatID, text); err != nil {
		s.logger.Error("failed to report inbound failure", zap.Error(err))
	}
}

// Menu returns the options last offered in a chat.
func (s *WhatsAppService) Menu(chatID string) []models.Button {
	return s.menus.Get(chatID)
}

// SendReply sends the reply text with its options numbered, then its
// document, and remembers the options so a numeric answer can be mapped back.
func (s *WhatsAppService) SendReply(ctx context.Context, chatID string, reply models.Reply) error {
	s.menus.Remember(chatID, reply.Buttons)
	if reply.Document != nil {
		if err := s.SendDocument(ctx, chatID, reply.Document); err != nil {
			return err
		}
	}
	return s.SendText(ctx, chatID, FormatReply(reply))
}

func (s *WhatsAppService) SendText(ctx context.Context, chatID, text string) error {
	if s.client == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	jid, err := ParseChatJID(chatID)
	if err != nil {
		return err
	}
	_, err = s.client.SendMessage(ctx, jid, &waProto.Message{Conversation: proto.String(text)})
	if err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}
	return nil
}

// SendDocument uploads the file and sends it, as an image when it is one.
func (s *WhatsAppService) SendDocument(ctx context.Context, chatID string, doc *models.Document) error {
	if s.client == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	jid, err := ParseChatJID(chatID)
	if err != nil {
		return err
	}

	mediaType := whatsmeow.MediaDocument
	if strings.HasPrefix(doc.ContentType, "image/") {
		mediaType = whatsmeow.MediaImage
	}
	uploaded, err := s.client.Upload(ctx, doc.Data, mediaType)
	if err != nil {
		return fmt.Errorf("error uploading %s: %w", doc.FileName, err)
	}

	var msg *waProto.Message
	if mediaType == whatsmeow.MediaImage {
		msg = &waProto.Message{
			ImageMessage: &waProto.ImageMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				Mimetype:      proto.String(doc.ContentType),
				FileLength:    proto.Uint64(uint64(len(doc.Data))),
				FileSHA256:    uploaded.FileSHA256,
				FileEncSHA256: uploaded.FileEncSHA256,
			},
		}
	} else {
		msg = &waProto.Message{
			DocumentMessage: &waProto.DocumentMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				Mimetype:      proto.String(doc.ContentType),
				Title:         proto.String(doc.FileName),
				FileName:      proto.String(doc.FileName),
				FileLength:    proto.Uint64(uint64(len(doc.Data))),
				FileSHA256:    uploaded.FileSHA256,
				FileEncSHA256: uploaded.FileEncSHA256,
			},
		}
	}
	if _, err := s.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("error sending %s: %w", doc.FileName, err)
	}
	return nil
}

// Notify delivers a reminder to a chat. The action becomes option 1 of the
// chat's menu.
func (s *WhatsAppService) Notify(ctx context.Context, target, message string, action *models.Button) error {
	reply := models.Reply{Text: message}
	if action != nil {
		reply.Buttons = []models.Button{*action}
	}
	return s.SendReply(ctx, target, reply)
}

func (s *WhatsAppService) Logout() error {
	if s.client == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if err := s.client.Logout(); err != nil {
		return fmt.Errorf("error during logout: %v", err)
	}
	s.setConnected(false)
	s.manager.SetDisconnected("logged out")
	return nil
}

// ParseChatJID accepts a full JID or a French phone number.
func ParseChatJID(target string) (types.JID, error) {
	target = strings.TrimSpace(target)
	if strings.Contains(target, "@") {
		jid, err := types.ParseJID(target)
		if err != nil {
			return types.JID{}, fmt.Errorf("invalid chat id %q: %v", target, err)
		}
		return jid, nil
	}
	phone, ok := utils.NormalizePhone(target)
	if !ok {
		phone, ok = utils.PhoneFromInternational(target)
	}
	if !ok {
		return types.JID{}, fmt.Errorf("%w: %q", models.ErrInvalidPhone, target)
	}
	return types.NewJID(utils.PhoneToInternational(phone), types.DefaultUserServer), nil
}
