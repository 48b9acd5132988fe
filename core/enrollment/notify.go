package enrollment

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/edmodule"
	"github.com/plp/edmodule/core/user"
)

type (
	UserGetter interface {
		GetByID(ctx context.Context, id int) (user.User, error)
	}

	ModuleGetter interface {
		GetByID(ctx context.Context, id int) (edmodule.Module, error)
	}

	SubscriptionChecker interface {
		IsUnsubscribed(ctx context.Context, userID, moduleID int) (bool, error)
	}

	// MailNotifier mails users about their module enrollments and payments.
	MailNotifier struct {
		users   UserGetter
		modules ModuleGetter
		subs    SubscriptionChecker
		mailSvc core.EmailService
		logger  core.Logger
	}

	mailData struct {
		User   user.User
		Module edmodule.Module
		Reason *Reason
	}
)

var mailSubjects = map[Event]string{
	EventEnrolled:   "You are enrolled on %s",
	EventUnenrolled: "You left %s",
	EventPayed:      "Payment received for %s",
}

func NewMailNotifier(users UserGetter, modules ModuleGetter, subs SubscriptionChecker, mailSvc core.EmailService, logger core.Logger) *MailNotifier {
	return &MailNotifier{
		users:   users,
		modules: modules,
		subs:    subs,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

// Notify is a Listener. Payment receipts are always sent; other mails respect unsubscribes.
func (n *MailNotifier) Notify(ev Event, e Enrollment, r *Reason) {
	ctx := context.Background()

	if ev != EventPayed {
		unsubscribed, err := n.subs.IsUnsubscribed(ctx, e.UserID, e.ModuleID)
		if err != nil {
			n.logger.Error(fmt.Sprintf("checking unsubscribe: %v", err), err)
			return
		}
		if unsubscribed {
			return
		}
	}

	usr, err := n.users.GetByID(ctx, e.UserID)
	if err != nil {
		n.logger.Error(fmt.Sprintf("getting user %d: %v", e.UserID, err), err)
		return
	}
	if usr.Email == "" {
		return
	}
	m, err := n.modules.GetByID(ctx, e.ModuleID)
	if err != nil {
		n.logger.Error(fmt.Sprintf("getting module %d: %v", e.ModuleID, err), err, usr)
		return
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf(mailSubjects[ev], m.Title),
		TemplateName: "edmodule_" + string(ev),
		TemplateData: mailData{User: usr, Module: m, Reason: r},
	}
	if ev == EventPayed && r != nil {
		if err = msg.Attach(strings.NewReader(receipt(m, *r)), "receipt-"+r.PaymentOrderID+".txt", "text/plain; charset=utf-8"); err != nil {
			n.logger.Error(fmt.Sprintf("attaching receipt: %v", err), err, usr)
		}
	}
	n.mailSvc.SendMessages(msg)
}

// receipt is the plain text payment receipt attached to payment mails.
func receipt(m edmodule.Module, r Reason) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Module: %s\n", m.Title)
	fmt.Fprintf(&b, "Order: %s\n", r.PaymentOrderID)
	if r.PaymentType != "" {
		fmt.Fprintf(&b, "Payment type: %s\n", r.PaymentType)
	}
	if r.PromoCode != "" {
		fmt.Fprintf(&b, "Promo code: %s\n", r.PromoCode)
	}
	paid := "partial"
	if r.FullPaid {
		paid = "full"
	}
	fmt.Fprintf(&b, "Payment: %s\n", paid)
	fmt.Fprintf(&b, "Date: %s UTC\n", r.CreatedAt.UTC().Format("2006-01-02 15:04"))
	return b.String()
}
