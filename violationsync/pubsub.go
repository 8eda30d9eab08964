package violationsync

import (
	"context"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tsgsafety/osha_tracker/config"
	"github.com/tsgsafety/osha_tracker/models"
	"github.com/tsgsafety/osha_tracker/utils"
)

// PubSubPushEnvelope is the body Pub/Sub push subscriptions POST.
type PubSubPushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageId  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PublishSyncRequest queues a run for the push endpoint.
func PublishSyncRequest(ctx context.Context, topic string, req SyncRequest) (string, error) {
	return config.PublishJSON(ctx, topic, req, map[string]string{"mode": req.Mode})
}

// PubSubPushHandler runs the sync carried by a push message. It always
// answers 204 so malformed or failing messages are acknowledged and dropped
// instead of being redelivered forever; the next scheduled run picks up
// whatever was left.
func (s *Service) PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.PubSubPushEnabled() {
			c.Status(204)
			return
		}
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			logger.WithFields(logrus.Fields{"field": "pubsub_push"}).Warn("invalid push envelope")
			c.Status(204)
			return
		}

		var req SyncRequest
		if err := json.Unmarshal(envelope.Message.Data, &req); err != nil {
			logger.WithFields(logrus.Fields{
				"field":      "pubsub_push",
				"message_id": envelope.Message.MessageId,
			}).Warn("invalid sync request payload")
			c.Status(204)
			return
		}

		ctx := c.Request.Context()
		if envelope.Message.MessageId != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, envelope.Message.MessageId)
		}
		if _, err := s.Dispatch(ctx, models.CronTriggeredPubSub, req); err != nil {
			config.LogError(logger, "violationsync", "PubSubPushHandler", "dispatch sync request", req, err)
		}
		c.Status(204)
	}
}
