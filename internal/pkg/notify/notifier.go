// Package notify delivers billing lifecycle notices to business owners as an
// in-app notification and, when SMTP is configured, an e-mail.
package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/ManuelReschke/PlaceFox/app/models"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/billing"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/mail"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Mailer sends a single e-mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Notifier implements billing.Notifier.
type Notifier struct {
	db     *gorm.DB
	mailer Mailer
}

var _ billing.Notifier = (*Notifier)(nil)

// NewNotifier returns a notifier; mailer may be nil to skip e-mail.
func NewNotifier(db *gorm.DB, mailer Mailer) *Notifier {
	return &Notifier{db: db, mailer: mailer}
}

// Notify stores the in-app notification once per (subscriber, event) and
// then tries the e-mail. Both failures are returned joined.
func (n *Notifier) Notify(ctx context.Context, notice billing.Notice) error {
	var subscriber models.Subscriber
	if err := n.db.WithContext(ctx).First(&subscriber, notice.SubscriberID).Error; err != nil {
		return errors.Wrapf(err, "load subscriber %d", notice.SubscriberID)
	}

	var inAppErr error
	created, err := n.storeInApp(ctx, notice)
	if err != nil {
		inAppErr = errors.Wrap(err, "store notification")
	}
	if !created && err == nil {
		log.Debugf("[Notify] Notification for event %s already stored", notice.EventID)
		return nil
	}

	var mailErr error
	if n.mailer != nil && subscriber.Email != "" {
		body := fmt.Sprintf("<p>%s</p>", html.EscapeString(notice.Body))
		if err := n.mailer.Send(ctx, subscriber.Email, notice.Title, body); err != nil && !errors.Is(err, mail.ErrNotConfigured) {
			mailErr = err
		}
	}
	return errors.CombineErrors(inAppErr, mailErr)
}

func (n *Notifier) storeInApp(ctx context.Context, notice billing.Notice) (bool, error) {
	return models.CreateNotification(n.db.WithContext(ctx), notice.SubscriberID, models.NotificationTypeBilling,
		notice.Title, notice.Body, notice.EventID)
}
