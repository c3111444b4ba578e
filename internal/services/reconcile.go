package services

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/diewo77/billing-engine/internal/gateway"
	"github.com/diewo77/billing-engine/internal/metrics"
	"github.com/diewo77/billing-engine/internal/models"
	"github.com/diewo77/billing-engine/internal/secrets"
)

// statusBuckets maps the gateway's status vocabulary onto lifecycle triggers.
// Gateways report far more statuses than the lifecycle distinguishes; a new
// gateway status lands in an existing bucket and nothing downstream changes.
var statusBuckets = map[string]string{
	gateway.StatusAuthorizationExpired:   models.TriggerFail,
	gateway.StatusSettlementDeclined:     models.TriggerFail,
	gateway.StatusFailed:                 models.TriggerFail,
	gateway.StatusGatewayRejected:        models.TriggerFail,
	gateway.StatusProcessorDeclined:      models.TriggerFail,
	gateway.StatusVoided:                 models.TriggerCancel,
	gateway.StatusAuthorizing:            models.TriggerProcess,
	gateway.StatusAuthorized:             models.TriggerProcess,
	gateway.StatusSubmittedForSettlement: models.TriggerProcess,
	gateway.StatusSettlementConfirmed:    models.TriggerProcess,
	gateway.StatusSettling:               models.TriggerSettle,
	gateway.StatusSettlementPending:      models.TriggerSettle,
	gateway.StatusSettled:                models.TriggerSettle,
}

// Reconciler folds externally-reported gateway results into the transaction
// lifecycle. Applying the same result twice is safe: the second application
// bounces off the transition table and is treated as already reconciled.
type Reconciler struct {
	DB      *gorm.DB
	Secrets *secrets.Box
	Metrics *metrics.Counters
	Debug   bool
}

func (r *Reconciler) debugf(format string, args ...interface{}) {
	if r.Debug {
		log.Printf(format, args...)
	}
}

// Apply reconciles a gateway result into tx and persists the outcome.
func (r *Reconciler) Apply(tx *models.Transaction, res *gateway.Result) error {
	changed := false
	if res.ExternalReference != "" && tx.ExternalReference != res.ExternalReference {
		tx.ExternalReference = res.ExternalReference
		changed = true
	}

	trigger, known := statusBuckets[res.Status]
	if !known {
		log.Printf("[Reconcile] transaction %d: unrecognized gateway status %q, leaving state %s",
			tx.ID, res.Status, tx.State)
	} else {
		var terr error
		switch trigger {
		case models.TriggerFail:
			terr = tx.Fail(res.Status)
		case models.TriggerCancel:
			terr = tx.Cancel(res.Status)
		case models.TriggerProcess:
			terr = tx.Process()
		case models.TriggerSettle:
			terr = tx.Settle()
		}
		if terr != nil {
			if !errors.Is(terr, models.ErrIllegalTransition) {
				return terr
			}
			r.debugf("[Reconcile] transaction %d: %v (already reconciled)", tx.ID, terr)
		} else {
			changed = true
			switch tx.State {
			case models.TransactionSettled:
				if r.Metrics != nil {
					r.Metrics.IncSettled()
				}
			case models.TransactionFailed:
				if r.Metrics != nil {
					r.Metrics.IncFailed()
				}
			}
		}
	}

	if changed {
		if err := models.SaveTransaction(r.DB, tx); err != nil {
			return err
		}
	}
	if res.Method != nil && tx.PaymentMethodID != 0 {
		if err := r.updateMethod(tx.PaymentMethodID, res.Method); err != nil {
			return err
		}
	}
	return nil
}

// updateMethod records the fingerprint the gateway reported alongside the
// result. The write is an overwrite, so replaying a result leaves the same
// metadata. A vault token coming back verifies a recurring method; a
// non-recurring method is always disabled so its one-shot nonce is never
// reused, token or not.
func (r *Reconciler) updateMethod(methodID uint, fp *gateway.MethodFingerprint) error {
	var m models.PaymentMethod
	if err := r.DB.First(&m, methodID).Error; err != nil {
		return err
	}
	now := time.Now().UTC()
	m.MethodType = fp.Type
	m.LastDigits = fp.LastDigits
	m.AddedAt = &now

	if m.Recurring {
		if fp.VaultToken != "" && r.Secrets != nil {
			if err := m.Verify(r.Secrets.Seal(fp.VaultToken)); err != nil {
				r.debugf("[Reconcile] method %d: %v", m.ID, err)
			}
		}
	} else {
		if err := m.Disable(); err != nil {
			r.debugf("[Reconcile] method %d: %v", m.ID, err)
		}
	}
	return r.DB.Save(&m).Error
}
