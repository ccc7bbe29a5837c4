// Command ruthctl runs and exercises the federated round coordinator: a
// long-lived server (serve), a seed-set publisher (seedset), and an
// in-process end-to-end simulation (simulate) for the scenarios of
// spec.md §8.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/ruth/aggregator"
	"github.com/luxfi/ruth/collector"
	"github.com/luxfi/ruth/collector/memstore"
	"github.com/luxfi/ruth/collector/redisstore"
	"github.com/luxfi/ruth/gatekeeper"
	"github.com/luxfi/ruth/internal/config"
	"github.com/luxfi/ruth/internal/obs"
	"github.com/luxfi/ruth/pkg/codec"
	"github.com/luxfi/ruth/pkg/party"
	"github.com/luxfi/ruth/pkg/pool"
	"github.com/luxfi/ruth/signer"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ed25519"
)

var (
	// Global flags
	dim      int
	useRedis bool

	// seedset flags
	seedsetRound   uint64
	seedsetCount   int
	seedsetEpsilon float64

	// simulate flags
	simClients   int
	simRounds    int
	simQuorum    uint64
	simByzantine bool

	rootCmd = &cobra.Command{
		Use:   "ruthctl",
		Short: "Operate a federated on-device LoRA round coordinator",
		Long:  `ruthctl runs and exercises the server side of the federated round protocol: gatekeeper verification, durable round collection, and Byzantine-robust aggregation.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the round collector's trigger loop until interrupted",
		RunE:  runServe,
	}

	seedsetCmd = &cobra.Command{
		Use:   "seedset",
		Short: "Print a SeedSet record for a round (CBOR, base64)",
		RunE:  runSeedset,
	}

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run an in-process end-to-end simulation of several rounds",
		RunE:  runSimulate,
	}
)

func init() {
	rootCmd.PersistentFlags().IntVarP(&dim, "dim", "d", 120, "gradient dimension d")
	rootCmd.PersistentFlags().BoolVar(&useRedis, "redis", false, "use RUTH_STORE_URL as the durable store instead of an in-memory store")

	seedsetCmd.Flags().Uint64Var(&seedsetRound, "round", 1, "round id")
	seedsetCmd.Flags().IntVar(&seedsetCount, "seeds", 8, "number of seeds to publish")
	seedsetCmd.Flags().Float64Var(&seedsetEpsilon, "epsilon", 0.1, "perturbation magnitude")

	simulateCmd.Flags().IntVar(&simClients, "clients", 5, "number of simulated clients")
	simulateCmd.Flags().IntVar(&simRounds, "rounds", 10, "number of rounds to simulate")
	simulateCmd.Flags().Uint64Var(&simQuorum, "quorum", 5, "quorum K")
	simulateCmd.Flags().BoolVar(&simByzantine, "byzantine", false, "have one client submit scalar = 100x honest_typical (spec.md §8 scenario 2)")

	rootCmd.AddCommand(serveCmd, seedsetCmd, simulateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		obs.Log().Error().Err(err).Msg("ruthctl: exiting with error")
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		obs.SetLogger(obs.Log().Level(lvl))
	}

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	oracle := gatekeeper.NewHTTPVerdictOracle(cfg.Oracle.Endpoint, cfg.Oracle.APIKey)
	gk := gatekeeper.New(staticKeyLookup, oracle)
	agg := aggregator.New(cfg.TrimRatio, pool.NewPool(0))

	col := collector.New(store, gk, agg, cfg.Quorum, dim,
		time.Duration(cfg.PollIntervalSeconds)*time.Second,
		func(round uint64, direction []float32) {
			resp := buildAggResponse(round, direction)
			b, err := codec.EncodeAggResponse(resp)
			if err != nil {
				obs.Log().Error().Err(err).Uint64("round_id", round).Msg("ruthctl: failed to encode AggResponse")
				return
			}
			obs.Log().Info().Uint64("round_id", round).Int("dim", len(direction)).Int("resp_bytes", len(b)).Msg("round aggregated")
		})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	obs.Log().Info().Uint64("quorum", cfg.Quorum).Msg("ruthctl: collector starting")
	return col.Run(ctx)
}

func buildStore(cfg *config.Config) (collector.Store, error) {
	if !useRedis {
		return memstore.New(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.URL,
		Password: cfg.Store.Password,
		DB:       cfg.Store.DB,
	})
	return redisstore.New(rdb), nil
}

// staticKeyLookup is a placeholder device registry; a real deployment
// resolves this against whatever out-of-band enrollment store holds
// device public keys (spec.md §4.4 treats key registration as external).
func staticKeyLookup(deviceID party.DeviceID) (ed25519.PublicKey, bool) {
	return nil, false
}

func runSeedset(cmd *cobra.Command, args []string) error {
	seeds := make([]party.SeedID, seedsetCount)
	for i := range seeds {
		seeds[i] = party.SeedID(rand.Int63())
	}
	set := &codec.SeedSet{
		RoundID:    party.RoundID(seedsetRound),
		PRNGConfig: map[string]interface{}{"family": "blake3-xof-boxmuller", "layout": "v1"},
		Seeds:      seeds,
		Epsilon:    float32(seedsetEpsilon),
	}
	b, err := codec.EncodeSeedSet(set)
	if err != nil {
		return err
	}
	fmt.Printf("round %d: %d seeds, %d bytes CBOR\n", set.RoundID, len(seeds), len(b))
	fmt.Println(base64.StdEncoding.EncodeToString(b))
	return nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	store := memstore.New()

	type client struct {
		signer   *signer.Signer
		deviceID party.DeviceID
	}
	clients := make([]client, simClients)
	keys := make(map[party.DeviceID]ed25519.PublicKey, simClients)
	for i := range clients {
		_, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return err
		}
		id := party.DeviceID(fmt.Sprintf("sim-device-%d", i))
		clients[i] = client{signer: signer.NewSigner(priv), deviceID: id}
		keys[id] = clients[i].signer.PublicKey()
	}
	lookup := func(deviceID party.DeviceID) (ed25519.PublicKey, bool) {
		k, ok := keys[deviceID]
		return k, ok
	}

	gk := gatekeeper.New(lookup, passthroughOracle{})
	agg := aggregator.New(0.1, pool.NewPool(0))

	var aggregatedCount int
	col := collector.New(store, gk, agg, simQuorum, dim, 20*time.Millisecond, func(round uint64, direction []float32) {
		aggregatedCount++
		resp := buildAggResponse(round, direction)
		b, err := codec.EncodeAggResponse(resp)
		if err != nil {
			obs.Log().Error().Err(err).Uint64("round_id", round).Msg("simulate: failed to encode AggResponse")
			return
		}
		fmt.Printf("round %d aggregated, norm=%.3f, resp=%d bytes\n", round, l2Norm(direction), len(b))
	})

	ctx, cancel := context.WithCancel(context.Background())
	go col.Run(ctx)
	defer cancel()
	time.Sleep(5 * time.Millisecond)

	for r := uint64(1); r <= uint64(simRounds); r++ {
		for i, c := range clients {
			scalar := float32(0.1 + rand.Float64()*0.1)
			if simByzantine && i == 4 {
				scalar *= 100
			}
			seedID := party.SeedID(r*1000 + uint64(i))
			roundID := party.RoundID(r)
			nonce := signer.AttestationNonce(seedID, scalar, roundID)
			update := &codec.ClientUpdate{
				RoundID:          roundID,
				DeviceID:         c.deviceID,
				SeedID:           seedID,
				Scalar:           scalar,
				Signature:        c.signer.Sign(seedID, scalar, roundID),
				AttestationToken: []byte(nonce),
			}
			if err := col.Submit(ctx, update); err != nil {
				obs.Log().Warn().Err(err).Str("device_id", string(c.deviceID)).Msg("simulate: update rejected")
			}
		}
	}
	time.Sleep(200 * time.Millisecond)
	fmt.Printf("%d/%d rounds aggregated\n", aggregatedCount, simRounds)
	return nil
}

// buildAggResponse builds the downlink record sent back to clients once a
// round has aggregated: the direction's norm (clients use this to gauge
// step size) and a hint pointing at the next round.
func buildAggResponse(round uint64, direction []float32) *codec.AggResponse {
	hint := fmt.Sprintf("round-%d", round+1)
	return &codec.AggResponse{
		ServerUpdates: map[string]interface{}{"direction_norm": l2Norm(direction)},
		NextRoundHint: &hint,
	}
}

func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

type passthroughOracle struct{}

func (passthroughOracle) Verify(ctx context.Context, token []byte) (*gatekeeper.Verdict, error) {
	return &gatekeeper.Verdict{IsValidSignature: true, BasicIntegrity: true, Nonce: string(token)}, nil
}
