package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"lead-console/config"
	"lead-console/internal/models"
	"lead-console/internal/wsnotify"
)

type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

var (
	ErrAlreadyConnected = errors.New("whatsapp is already connected")
	ErrNoQRCode         = errors.New("no qr code available yet")
	ErrChatDisabled     = errors.New("whatsapp transport is disabled")
	ErrNotConnected     = errors.New("whatsapp is not connected")
)

// ConnectionState is the status snapshot served to the admin endpoints.
type ConnectionState struct {
	Status    ConnectionStatus `json:"status"`
	LastError string           `json:"last_error,omitempty"`
	HasQRCode bool             `json:"has_qrcode"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ConnectionManager owns the single WhatsApp connection of the console and
// tracks its pairing state.
type ConnectionManager struct {
	mutex     sync.RWMutex
	service   *WhatsAppService
	config    *config.WhatsAppConfig
	status    ConnectionStatus
	qrCode    string
	lastError string
	updatedAt time.Time
	logger    *zap.Logger
	now       func() time.Time
	inbound   func(ctx context.Context, msg models.InboundMessage)
}

func NewConnectionManager(cfg *config.WhatsAppConfig, logger *zap.Logger) *ConnectionManager {
	return &ConnectionManager{
		config:    cfg,
		status:    StatusDisconnected,
		logger:    logger,
		now:       time.Now,
		updatedAt: time.Now(),
	}
}

// GetConnection returns the WhatsApp service, creating and connecting it on
// first use.
func (cm *ConnectionManager) GetConnection() (*WhatsAppService, error) {
	if cm.config == nil || !cm.config.Enabled {
		return nil, ErrChatDisabled
	}

	cm.mutex.RLock()
	if cm.service != nil {
		service := cm.service
		cm.mutex.RUnlock()
		return service, nil
	}
	cm.mutex.RUnlock()

	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if cm.service != nil {
		return cm.service, nil
	}

	service := NewWhatsAppService(cm.config, cm, cm.logger)
	if cm.inbound != nil {
		service.OnInbound(cm.inbound)
	}
	cm.setStatusLocked(StatusConnecting, "")
	if err := service.Connect(); err != nil {
		cm.setStatusLocked(StatusDisconnected, err.Error())
		cm.logger.Error("failed to connect whatsapp", zap.Error(err))
		return nil, fmt.Errorf("error connecting whatsapp: %w", err)
	}
	cm.service = service
	cm.logger.Info("whatsapp connection created")
	return service, nil
}

// OnInbound sets the operator message callback of the current and every
// future connection.
func (cm *ConnectionManager) OnInbound(fn func(ctx context.Context, msg models.InboundMessage)) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.inbound = fn
	if cm.service != nil {
		cm.service.OnInbound(fn)
	}
}

func (cm *ConnectionManager) setStatusLocked(status ConnectionStatus, lastError string) {
	changed := cm.status != status
	cm.status = status
	cm.lastError = lastError
	cm.updatedAt = cm.now()
	if status == StatusConnected {
		cm.qrCode = ""
	}
	if changed {
		wsnotify.SendNotice("whatsapp", "whatsapp "+string(status), "", "")
	}
}

// UpdateQRCode stores the latest pairing code.
func (cm *ConnectionManager) UpdateQRCode(code string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.qrCode = code
	cm.setStatusLocked(StatusConnecting, "")
	cm.logger.Info("whatsapp qr code updated")
}

func (cm *ConnectionManager) SetConnected() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.setStatusLocked(StatusConnected, "")
}

func (cm *ConnectionManager) SetDisconnected(reason string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.setStatusLocked(StatusDisconnected, reason)
}

func (cm *ConnectionManager) Status() ConnectionState {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return ConnectionState{
		Status:    cm.status,
		LastError: cm.lastError,
		HasQRCode: cm.qrCode != "",
		UpdatedAt: cm.updatedAt,
	}
}

// QRCodePNG renders the current pairing code.
func (cm *ConnectionManager) QRCodePNG() ([]byte, error) {
	cm.mutex.RLock()
	status, code := cm.status, cm.qrCode
	cm.mutex.RUnlock()

	if status == StatusConnected {
		return nil, ErrAlreadyConnected
	}
	if code == "" {
		return nil, ErrNoQRCode
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("error generating QR code: %v", err)
	}
	return png, nil
}

func (cm *ConnectionManager) QRCodeBase64() (string, error) {
	png, err := cm.QRCodePNG()
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Logout unlinks the device from the phone. The next GetConnection starts a
// new pairing.
func (cm *ConnectionManager) Logout() error {
	cm.mutex.Lock()
	service := cm.service
	if service == nil || !service.IsConnected() {
		cm.mutex.Unlock()
		return ErrNotConnected
	}
	cm.service = nil
	cm.mutex.Unlock()

	err := service.Logout()
	service.Disconnect()
	return err
}

// CloseAllConnections disconnects without logging out, so the paired device
// survives a restart.
func (cm *ConnectionManager) CloseAllConnections() error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if cm.service != nil {
		cm.service.Disconnect()
		cm.service = nil
	}
	cm.setStatusLocked(StatusDisconnected, "")
	return nil
}

// Menu returns the options last shown in chatID by the current connection.
func (cm *ConnectionManager) Menu(chatID string) []models.Button {
	cm.mutex.RLock()
	service := cm.service
	cm.mutex.RUnlock()
	if service == nil {
		return nil
	}
	return service.Menu(chatID)
}

func (cm *ConnectionManager) SendReply(ctx context.Context, chatID string, reply models.Reply) error {
	service, err := cm.GetConnection()
	if err != nil {
		return err
	}
	return service.SendReply(ctx, chatID, reply)
}

// Notify delivers a reminder through WhatsApp, connecting first if needed.
func (cm *ConnectionManager) Notify(ctx context.Context, target, message string, action *models.Button) error {
	service, err := cm.GetConnection()
	if err != nil {
		return err
	}
	return service.Notify(ctx, target, message, action)
}
