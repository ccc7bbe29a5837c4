package collector_test

import (
	"context"
	"time"

	"github.com/luxfi/ruth/aggregator"
	"github.com/luxfi/ruth/collector"
	"github.com/luxfi/ruth/collector/memstore"
	"github.com/luxfi/ruth/gatekeeper"
	"github.com/luxfi/ruth/pkg/codec"
	"github.com/luxfi/ruth/pkg/errs"
	"github.com/luxfi/ruth/pkg/party"
	"github.com/luxfi/ruth/signer"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/ed25519"
)

type scriptedOracle struct {
	verdict *gatekeeper.Verdict
}

func (o scriptedOracle) Verify(ctx context.Context, token []byte) (*gatekeeper.Verdict, error) {
	return o.verdict, nil
}

var _ = Describe("Round lifecycle", func() {
	var (
		s       *signer.Signer
		lookup  gatekeeper.PublicKeyLookup
		store   *memstore.Store
		agg     *aggregator.Aggregator
		aggregations []uint64
	)

	BeforeEach(func() {
		_, priv, err := ed25519.GenerateKey(nil)
		Expect(err).NotTo(HaveOccurred())
		s = signer.NewSigner(priv)
		lookup = func(deviceID party.DeviceID) (ed25519.PublicKey, bool) {
			if deviceID == "device-a" {
				return s.PublicKey(), true
			}
			return nil, false
		}
		store = memstore.New()
		agg = aggregator.New(0.1, nil)
		aggregations = nil
	})

	honestUpdate := func(roundID, seedID uint64, scalar float32) *codec.ClientUpdate {
		rid, sid := party.RoundID(roundID), party.SeedID(seedID)
		nonce := signer.AttestationNonce(sid, scalar, rid)
		return &codec.ClientUpdate{
			RoundID:          rid,
			DeviceID:         "device-a",
			SeedID:           sid,
			Scalar:           scalar,
			Signature:        s.Sign(sid, scalar, rid),
			AttestationToken: []byte(nonce),
		}
	}

	It("tampered scalar is rejected with SignatureFail", func() {
		gk := gatekeeper.New(lookup, scriptedOracle{&gatekeeper.Verdict{IsValidSignature: true, BasicIntegrity: true}})
		col := collector.New(store, gk, agg, 3, 8, 5*time.Millisecond, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go col.Run(ctx)
		time.Sleep(5 * time.Millisecond)

		update := honestUpdate(7, 42, 0.1)
		update.Scalar = 0.2 // tamper after signing

		err := col.Submit(context.Background(), update)
		Expect(err).To(HaveOccurred())
		Expect(err.(*errs.Error).Kind).To(Equal(errs.SignatureFail))
	})

	It("replayed attestation with a different scalar is rejected with NonceMismatch", func() {
		staleNonce := signer.AttestationNonce(42, 0.1, 7)
		gk := gatekeeper.New(lookup, scriptedOracle{&gatekeeper.Verdict{IsValidSignature: true, BasicIntegrity: true, Nonce: staleNonce}})
		col := collector.New(store, gk, agg, 3, 8, 5*time.Millisecond, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go col.Run(ctx)
		time.Sleep(5 * time.Millisecond)

		update := honestUpdate(7, 42, 0.2) // re-signed for a different scalar
		err := col.Submit(context.Background(), update)
		Expect(err).To(HaveOccurred())
		Expect(err.(*errs.Error).Kind).To(Equal(errs.NonceMismatch))
	})

	It("an integrity failure from the oracle is rejected with IntegrityFail", func() {
		nonce := signer.AttestationNonce(42, 0.1, 7)
		gk := gatekeeper.New(lookup, scriptedOracle{&gatekeeper.Verdict{IsValidSignature: true, BasicIntegrity: false, Nonce: nonce}})
		col := collector.New(store, gk, agg, 3, 8, 5*time.Millisecond, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go col.Run(ctx)
		time.Sleep(5 * time.Millisecond)

		err := col.Submit(context.Background(), honestUpdate(7, 42, 0.1))
		Expect(err).To(HaveOccurred())
		Expect(err.(*errs.Error).Kind).To(Equal(errs.IntegrityFail))
	})

	It("quorum edge: K=3 does not aggregate at 2 updates but does at 3, then deletes both keys", func() {
		gk := gatekeeper.New(lookup, passthroughOracle{})
		col := collector.New(store, gk, agg, 3, 8, 5*time.Millisecond, func(round uint64, direction []float32) {
			aggregations = append(aggregations, round)
		})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go col.Run(ctx)
		time.Sleep(5 * time.Millisecond)

		for i := 0; i < 2; i++ {
			Expect(col.Submit(context.Background(), honestUpdate(9, uint64(200+i), 0.1))).To(Succeed())
		}
		time.Sleep(20 * time.Millisecond)
		Expect(aggregations).To(BeEmpty())

		Expect(col.Submit(context.Background(), honestUpdate(9, 202, 0.1))).To(Succeed())
		time.Sleep(40 * time.Millisecond)

		Expect(aggregations).To(Equal([]uint64{9}))

		count, err := store.Count(context.Background(), 9)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(BeZero())

		reads, err := store.ReadAll(context.Background(), 9)
		Expect(err).NotTo(HaveOccurred())
		Expect(reads).To(BeEmpty())
	})
})

// passthroughOracle always reports the caller's actual expected nonce by
// echoing the token (the test encodes the nonce as the token), matching
// the client/server contract exercised elsewhere without needing a
// per-test scripted nonce.
type passthroughOracle struct{}

func (passthroughOracle) Verify(ctx context.Context, token []byte) (*gatekeeper.Verdict, error) {
	return &gatekeeper.Verdict{IsValidSignature: true, BasicIntegrity: true, Nonce: string(token)}, nil
}
