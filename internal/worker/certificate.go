package worker

import (
	"context"
	"fmt"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/internal/metrics"
)

// announceCertificate makes sure our VSS certificate is confirmed and not
// expired for the epoch of the slot, announcing it otherwise. It runs on every
// slot: a lost announcement is retried by the next slot's check.
func (w *Worker) announceCertificate(ctx context.Context, id slot.ID, richmen ssc.RichmenSet) error {
	confirmed, ok := w.deps.State.GlobalCertificates(id)[w.node.ID()]
	switch {
	case ok && confirmed.ValidFor(id.Epoch):
		w.l.Debugw("certificate already announced", "epoch", id.Epoch, "expiry", confirmed.ExpiryEpoch)
		return nil
	case ok:
		w.l.Errorw("confirmed certificate expired, announcing it again",
			"anomaly", "expired_certificate", "epoch", id.Epoch, "expiry", confirmed.ExpiryEpoch)
		metrics.PhaseAction(PhaseAnnouncing.String(), "resend")
	default:
		w.l.Infow("certificate not announced yet, announcing it", "epoch", id.Epoch)
		metrics.PhaseAction(PhaseAnnouncing.String(), "announce")
	}

	cert, err := w.ourCertificate(id.Epoch)
	if err != nil {
		return err
	}
	// the certificate is announced even when the mempool already refuses it:
	// peers may still be missing it.
	if _, err := w.submit(ctx, id.Epoch, richmen, ssc.CertificateContents{Certificate: cert}); err != nil {
		return err
	}
	return w.scheduler.Send(ctx, ssc.TagCertificate)
}

// ourCertificate returns the certificate waiting in the mempool, or a fresh one
// when none is pending for the epoch.
func (w *Worker) ourCertificate(epoch slot.Epoch) (*key.VssCertificate, error) {
	if pending, ok := w.deps.Mempool.LocalCertificates()[w.node.ID()]; ok && pending.ValidFor(epoch) {
		return pending, nil
	}
	expiry := w.params.certificateExpiry(epoch)
	cert, err := key.NewVssCertificate(w.node.Signing, w.node.Vss.Public, expiry)
	if err != nil {
		return nil, fmt.Errorf("creating certificate: %w", err)
	}
	w.l.Debugw("created certificate", "epoch", epoch, "expiry", expiry)
	return cert, nil
}
