package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/essentia-erp/essentia-erp/internal/inventory"
)

// TaskInventoryLowStock triggers the periodic safety stock scan.
const TaskInventoryLowStock = "inventory:lowstock"

// LowStockPayload carries scheduling metadata.
type LowStockPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockTask constructs an Asynq task for the low stock scan.
func NewLowStockTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryLowStock, body, asynq.Queue(QueueDefault)), nil
}

// InventoryPort lists the items the scan inspects.
type InventoryPort interface {
	ListBelowSafetyStock(ctx context.Context) ([]inventory.Item, error)
}

// MailEnqueuer submits notification emails to the queue.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// LowStockJob scans for items under their safety stock level and mails a
// summary to the configured recipient.
type LowStockJob struct {
	inventory InventoryPort
	mailer    MailEnqueuer
	recipient string
	logger    *slog.Logger
}

// NewLowStockJob constructs a LowStockJob.
func NewLowStockJob(inv InventoryPort, mailer MailEnqueuer, recipient string, logger *slog.Logger) *LowStockJob {
	return &LowStockJob{inventory: inv, mailer: mailer, recipient: recipient, logger: logger}
}

// Handle processes TaskInventoryLowStock tasks.
func (j *LowStockJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LowStockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	items, err := j.inventory.ListBelowSafetyStock(ctx)
	if err != nil {
		return err
	}
	if j.logger != nil {
		j.logger.Info("low stock scan", slog.Int("items", len(items)))
	}
	if len(items) == 0 || j.recipient == "" || j.mailer == nil {
		return nil
	}

	var b strings.Builder
	b.WriteString("The following items are below their safety stock level:\n\n")
	for _, item := range items {
		fmt.Fprintf(&b, "%s %s: on hand %s, safety level %s %s\n",
			item.Code, item.Name,
			item.CurrentStock.String(), item.SafetyStockLevel.String(), item.Unit)
	}

	_, err = j.mailer.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      j.recipient,
		Subject: fmt.Sprintf("Low stock alert: %d item(s)", len(items)),
		Body:    b.String(),
	})
	return err
}
