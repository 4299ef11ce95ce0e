package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/zodiya/funnel-api/external/stripebilling"
	"github.com/zodiya/funnel-api/internal/domain/funnel"
	"github.com/zodiya/funnel-api/internal/platform/logging"
)

type billingGateway interface {
	CreatePaymentSession(ctx context.Context, planID, email, name string, attribution funnel.Attribution) (string, error)
	ConfirmPayment(ctx context.Context, clientSecret string) error
}

// CheckoutService orchestrates the payment session: it fetches the client
// secret the payment widget mounts against and drives confirmation. Session
// creation is fatal on failure with no automatic retry; confirmation is
// retryable until it succeeds exactly once.
type CheckoutService struct {
	funnel  *FunnelService
	billing billingGateway
	logger  *logging.Logger
}

func NewCheckoutService(funnelService *FunnelService, billing billingGateway, logger *logging.Logger) *CheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	return &CheckoutService{
		funnel:  funnelService,
		billing: billing,
		logger:  logger,
	}
}

// CreatePaymentSession returns the session's client secret, requesting one
// from the billing system on first call. The secret is cached on the session;
// a recorded failure is terminal and replayed without a new billing call, so
// the visitor has to reselect a plan to try again.
func (s *CheckoutService) CreatePaymentSession(ctx context.Context, sessionID string) (funnel.Session, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.CheckoutService.CreatePaymentSession")
	defer span.End()

	session, err := s.funnel.get(ctx, sessionID)
	if err != nil {
		return funnel.Session{}, err
	}
	if session.Screen != funnel.ScreenCheckout {
		return funnel.Session{}, fmt.Errorf("%w: session is not on the checkout screen", ErrInvalidInput)
	}
	if session.Checkout.ClientSecret != "" {
		return session, nil
	}
	if session.Checkout.FailureMessage != "" {
		return session, fmt.Errorf("%w: %s", ErrDependencyUnavailable, session.Checkout.FailureMessage)
	}
	if session.SelectedPlanID == "" {
		return funnel.Session{}, fmt.Errorf("%w: no plan selected", ErrInvalidInput)
	}

	secret, billErr := s.billing.CreatePaymentSession(ctx,
		session.SelectedPlanID,
		session.ContactEmail,
		session.ContactName,
		session.Attribution,
	)

	return s.funnel.mutate(ctx, sessionID, func(session *funnel.Session) error {
		if session.Screen != funnel.ScreenCheckout {
			return fmt.Errorf("%w: session is not on the checkout screen", ErrInvalidInput)
		}
		if session.Checkout.ClientSecret != "" {
			return nil // a concurrent call won; keep its secret
		}

		if billErr != nil {
			session.Checkout.FailureMessage = billErr.Error()
			s.logger.WarnContext(ctx, "payment session creation failed",
				"session_id", session.ID,
				"plan_id", session.SelectedPlanID,
				"error", billErr,
			)
			return fmt.Errorf("%w: %s", ErrDependencyUnavailable, billErr.Error())
		}

		session.Checkout.ClientSecret = secret
		session.Checkout.FailureMessage = ""
		return nil
	})
}

// ConfirmPayment confirms the mounted payment session. A busy flag rejects
// overlapping confirmations, provider rejections surface their message and
// leave the session retryable, and success transitions to the success screen
// exactly once.
func (s *CheckoutService) ConfirmPayment(ctx context.Context, sessionID string) (funnel.Session, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.CheckoutService.ConfirmPayment")
	defer span.End()

	var clientSecret string
	session, err := s.funnel.mutate(ctx, sessionID, func(session *funnel.Session) error {
		if session.Checkout.Completed {
			return fmt.Errorf("%w: payment already completed", ErrInvalidInput)
		}
		if session.Screen != funnel.ScreenCheckout {
			return fmt.Errorf("%w: session is not on the checkout screen", ErrInvalidInput)
		}
		if session.Checkout.ClientSecret == "" {
			return fmt.Errorf("%w: payment session is not initialized", ErrInvalidInput)
		}
		if session.Checkout.Confirming {
			return fmt.Errorf("%w: confirmation already in progress", ErrInvalidInput)
		}
		session.Checkout.Confirming = true
		clientSecret = session.Checkout.ClientSecret
		return nil
	})
	if err != nil {
		return session, err
	}

	confirmErr := s.billing.ConfirmPayment(ctx, clientSecret)

	session, err = s.funnel.mutate(ctx, sessionID, func(session *funnel.Session) error {
		session.Checkout.Confirming = false

		if confirmErr != nil {
			var providerErr *stripebilling.ProviderError
			if errors.As(confirmErr, &providerErr) {
				return fmt.Errorf("%w: %s", ErrPaymentRejected, providerErr.Message)
			}
			return fmt.Errorf("%w: %s", ErrDependencyUnavailable, confirmErr.Error())
		}

		if !session.Checkout.Completed {
			session.Checkout.Completed = true
			session.Screen = funnel.ScreenSuccess
		}
		return nil
	})
	if err != nil {
		return session, err
	}

	s.logger.InfoContext(ctx, "payment confirmed",
		"session_id", session.ID,
		"plan_id", session.SelectedPlanID,
	)
	return session, nil
}
