// Command blocksyncd runs a standalone node that serves and demonstrates
// the block-request protocol over a real libp2p host. It exists mainly as
// a wiring example: production nodes embed blocksync.Behavior inside their
// own NetworkBehaviour composition rather than running it standalone.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"
	"github.com/urfave/cli/v2"

	"github.com/ethsync/blocksync"
	"github.com/ethsync/blocksync/chain"
	"github.com/ethsync/blocksync/message"
	"github.com/ethsync/blocksync/transport"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "path to a TOML configuration file",
	}
	protocolIDFlag = &cli.StringFlag{
		Name:  "protocol-id",
		Usage: "chain protocol identifier used to derive the negotiated protocol name",
		Value: "demo",
	}
	listenFlag = &cli.StringFlag{
		Name:  "listen",
		Usage: "multiaddr to listen on",
		Value: "/ip4/0.0.0.0/tcp/0",
	}
	connectFlag = &cli.StringFlag{
		Name:  "connect",
		Usage: "multiaddr of a peer to dial and issue a demo block request to",
	}
)

func main() {
	app := &cli.App{
		Name:  "blocksyncd",
		Usage: "serve and fetch block data over the block-request protocol",
		Flags: []cli.Flag{configFlag, protocolIDFlag, listenFlag, connectFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Error("blocksyncd terminated", "err", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg := defaultDaemonConfig(ctx.String("protocol-id"))
	if path := ctx.String("config"); path != "" {
		if err := loadConfig(path, &cfg); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}
	if ctx.IsSet(protocolIDFlag.Name) {
		cfg.Sync.ProtocolID = ctx.String(protocolIDFlag.Name)
	}

	h, err := libp2p.New(libp2p.ListenAddrStrings(ctx.String("listen")))
	if err != nil {
		return fmt.Errorf("starting libp2p host: %w", err)
	}
	defer h.Close()

	store := chain.NewMem()
	seedDemoChain(store)

	behavior := blocksync.New(cfg.Sync, store)
	registerResponder(h, behavior, cfg.Sync)

	log.Info("blocksyncd listening", "id", h.ID(), "addrs", h.Addrs(), "protocol", behavior.ProtocolName())

	go runPollLoop(h, behavior, cfg.Sync)

	if target := ctx.String("connect"); target != "" {
		if err := dialAndRequest(ctx.Context, h, behavior, target); err != nil {
			return err
		}
	}

	select {}
}

func seedDemoChain(store *chain.Mem) {
	genesis := store.AppendBlock(0, common.Hash{}, nil)
	store.AppendBlock(1, genesis.Hash, nil)
}

func demoRequest() message.Request {
	return message.Request{ID: 1, Fields: message.Header, From: message.FromNumber(0), Dir: message.Ascending, Max: 16}
}

// registerResponder wires the behavior's responder path to the host: every
// inbound substream on the protocol is upgraded and answered synchronously
// in the goroutine the host runs its stream handler in. Concurrent inbound
// substreams from the same peer or connection are neither limited nor
// rejected here; each one is answered.
func registerResponder(h host.Host, b *blocksync.Behavior, cfg blocksync.Config) {
	h.SetStreamHandler(cfg.ProtocolName(), func(s network.Stream) {
		in, err := transport.UpgradeInbound(s, cfg.MaxRequestLen, cfg.InactivityTimeout, cfg.RequestTimeout)
		if err != nil {
			log.Debug("Rejecting inbound block request", "peer", s.Conn().RemotePeer(), "err", err)
			s.Reset()
			return
		}
		if err := b.AnswerInbound(s.Conn().RemotePeer(), in); err != nil {
			log.Debug("Failed answering block request", "peer", s.Conn().RemotePeer(), "err", err)
		}
	})
}

// runPollLoop drains Behavior.Poll, dispatching DialInstructions to the
// host's stream-open API and logging emitted Events. A production
// integration would forward Events to the sync layer instead of logging.
func runPollLoop(h host.Host, b *blocksync.Behavior, cfg blocksync.Config) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for now := range ticker.C {
		for {
			ev, dial, ready := b.Poll(now)
			if !ready {
				break
			}
			if dial != nil {
				go executeDial(h, b, dial, cfg.RequestTimeout)
				continue
			}
			logEvent(ev)
		}
	}
}

func executeDial(h host.Host, b *blocksync.Behavior, dial *blocksync.DialInstruction, requestTimeout time.Duration) {
	s, err := h.NewStream(context.Background(), dial.Peer, protocol.ID(dial.ProtocolID))
	if err != nil {
		b.DeliverOutboundResult(dial.Peer, dial.ConnectionID, transport.OutboundResult{}, err)
		return
	}
	result, err := transport.UpgradeOutbound(s, dial.SerializedRequest, dial.OriginalRequest, dial.MaxResponseLen, requestTimeout)
	b.DeliverOutboundResult(dial.Peer, dial.ConnectionID, result, err)
}

func logEvent(ev *blocksync.Event) {
	switch ev.Kind {
	case blocksync.EventResponse:
		log.Info("Received block response", "peer", ev.Peer, "blocks", len(ev.Response.Blocks), "duration", ev.Duration)
	case blocksync.EventAnsweredRequest:
		log.Info("Answered block request", "peer", ev.Peer, "duration", ev.Duration)
	case blocksync.EventRequestTimeout:
		log.Warn("Block request timed out", "peer", ev.Peer)
	case blocksync.EventRequestCancelled:
		log.Warn("Block request cancelled", "peer", ev.Peer)
	}
}

func dialAndRequest(ctx context.Context, h host.Host, b *blocksync.Behavior, target string) error {
	addr, err := multiaddr.NewMultiaddr(target)
	if err != nil {
		return fmt.Errorf("parsing peer multiaddr: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("resolving peer info: %w", err)
	}
	if err := h.Connect(ctx, *info); err != nil {
		return fmt.Errorf("dialing peer: %w", err)
	}

	b.OnConnectionEstablished(info.ID, 1)
	outcome := b.SendRequest(info.ID, demoRequest())
	log.Info("Issued demo block request", "peer", info.ID, "outcome", outcome.Kind)
	return nil
}
