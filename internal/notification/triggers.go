package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"smartspray.io/notifier/internal/pkg/logger"
)

// DiseaseCriticalConfidence is the detection confidence from which a disease
// finding is escalated to a critical alert.
const DiseaseCriticalConfidence = 0.8

// Triggers turns field events reported by other SmartSpray services (spray
// controller, disease model, device gateway) into notifications.
//
// Trigger failures are logged and returned so the integration endpoint can
// report them; they never retry.
type Triggers struct {
	dispatcher *Dispatcher
}

// NewTriggers creates a trigger service.
func NewTriggers(dispatcher *Dispatcher) *Triggers {
	return &Triggers{dispatcher: dispatcher}
}

// OnSprayCompleted notifies the farm owner that a spray run finished.
func (t *Triggers) OnSprayCompleted(ctx context.Context, userID, sprayID, fieldName string, litres float64) (*Notification, error) {
	n, err := t.dispatcher.Create(ctx, CreateRequest{
		UserID:        userID,
		Kind:          KindSuccess,
		Title:         "Spray completed",
		Message:       fmt.Sprintf("Spraying of %s finished: %.1f L applied.", fieldName, litres),
		RelatedEntity: &RelatedEntity{Type: EntitySpray, ID: sprayID},
		Priority:      PriorityLow,
		Channels:      []Channel{ChannelInApp},
	})
	if err != nil {
		logger.Error("failed to send spray completed notification",
			zap.String("spray_id", sprayID),
			zap.Error(err),
		)
	}
	return n, err
}

// OnDiseaseDetected warns the farm owner about a detected crop disease.
// High-confidence findings go out as critical alerts.
func (t *Triggers) OnDiseaseDetected(ctx context.Context, userID, farmID, disease string, confidence float64) (*Notification, error) {
	title := "Crop disease detected"
	message := fmt.Sprintf("%s detected with %.0f%% confidence. Inspect the affected area.", disease, confidence*100)
	related := &RelatedEntity{Type: EntityFarm, ID: farmID}

	var (
		n   *Notification
		err error
	)
	if confidence >= DiseaseCriticalConfidence {
		n, err = t.dispatcher.SendCriticalAlert(ctx, userID, title, message, related)
	} else {
		n, err = t.dispatcher.Create(ctx, CreateRequest{
			UserID:        userID,
			Kind:          KindWarning,
			Title:         title,
			Message:       message,
			RelatedEntity: related,
			Priority:      PriorityMedium,
			Channels:      []Channel{ChannelInApp, ChannelEmail},
		})
	}
	if err != nil {
		logger.Error("failed to send disease detection notification",
			zap.String("farm_id", farmID),
			zap.String("disease", disease),
			zap.Error(err),
		)
	}
	return n, err
}

// OnDeviceOffline tells the owner a field sensor stopped reporting.
func (t *Triggers) OnDeviceOffline(ctx context.Context, userID, deviceID string) (*Notification, error) {
	n, err := t.dispatcher.Create(ctx, CreateRequest{
		UserID:        userID,
		Kind:          KindError,
		Title:         "Device offline",
		Message:       fmt.Sprintf("Sensor %s stopped reporting.", deviceID),
		RelatedEntity: &RelatedEntity{Type: EntitySensor, ID: deviceID},
		Priority:      PriorityHigh,
		Channels:      []Channel{ChannelInApp, ChannelEmail, ChannelSMS},
	})
	if err != nil {
		logger.Error("failed to send device offline notification",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}
	return n, err
}
