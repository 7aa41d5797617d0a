package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// AlertInput is the input for the alert workflow.
type AlertInput struct {
	EventID string
}

// AlertWorkflow fans a geofence event out to its subscribed users. For
// each recipient it records a notification, then delivers the push. If
// delivery fails the recorded notification is removed (saga compensation).
func AlertWorkflow(ctx workflow.Context, input AlertInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting alert workflow", "eventID", input.EventID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: Resolve which users subscribe to this fence
	var userIDs []string
	if err := workflow.ExecuteActivity(ctx, "ResolveRecipients", input.EventID).Get(ctx, &userIDs); err != nil {
		return err
	}
	if len(userIDs) == 0 {
		logger.Info("No recipients for event", "eventID", input.EventID)
		return nil
	}

	// Steps 2-3, per user: record the notification, then deliver it.
	// A failed delivery rolls back that user's record and moves on so
	// one dead device doesn't starve the rest.
	failed := 0
	for _, userID := range userIDs {
		var code string
		if err := workflow.ExecuteActivity(ctx, "RecordNotification", input.EventID, userID).Get(ctx, &code); err != nil {
			logger.Warn("record notification failed", "user", userID, "error", err)
			failed++
			continue
		}

		if err := workflow.ExecuteActivity(ctx, "DeliverNotification", code).Get(ctx, nil); err != nil {
			logger.Warn("delivery failed, compensating", "user", userID, "error", err)
			_ = workflow.ExecuteActivity(ctx, "RemoveNotification", code).Get(ctx, nil)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("alert delivery failed for %d of %d recipients", failed, len(userIDs))
	}
	logger.Info("Alert delivered", "eventID", input.EventID, "recipients", len(userIDs))
	return nil
}
