// Command libp2p-demo is a contract stub, not a full peer daemon:
// configuration loading, concrete rendezvous, and a production CLI are
// all out of scope. It exists to give the orchestrator (upgrader,
// transports, mDNS) a runnable entry point, wired the way the teacher's
// alohartcd wired flags and subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanikai/libp2p-core-lite/discovery/mdns"
	"github.com/lanikai/libp2p-core-lite/event"
	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/peer"
	"github.com/lanikai/libp2p-core-lite/rcmgr"
	"github.com/lanikai/libp2p-core-lite/security"
	"github.com/lanikai/libp2p-core-lite/transport"
	"github.com/lanikai/libp2p-core-lite/transport/quic"
	"github.com/lanikai/libp2p-core-lite/upgrader"
)

func main() {
	root := &cobra.Command{Use: "libp2p-demo"}
	root.AddCommand(dialCmd())
	root.AddCommand(discoverCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newIdentity() (peer.PrivateKey, peer.ID, error) {
	priv, pub, err := peer.GenerateEd25519()
	if err != nil {
		return nil, "", err
	}
	id, err := peer.FromPublicKey(pub)
	if err != nil {
		return nil, "", err
	}
	return priv, id, nil
}

func newUpgrader(key peer.PrivateKey) *upgrader.Upgrader {
	return &upgrader.Upgrader{
		Transports: []transport.Transport{quic.Transport{}},
		Security:   &security.Upgrader{LocalKey: key},
		Resources:  rcmgr.New(rcmgr.DefaultConfig()),
		LocalKey:   key,
	}
}

func dialCmd() *cobra.Command {
	var remoteAddr string
	cmd := &cobra.Command{
		Use:   "dial",
		Short: "dial a multiaddr and report the negotiated connection",
		Run: func(cmd *cobra.Command, args []string) {
			addr, err := multiaddr.Parse(remoteAddr)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			remote, ok := addr.PeerID()
			if !ok {
				fmt.Fprintln(os.Stderr, "dial address must carry a /p2p component")
				os.Exit(1)
			}

			priv, _, err := newIdentity()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			u := newUpgrader(priv)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			conn, err := u.Dial(ctx, addr, remote)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			defer conn.Close()
			fmt.Printf("connected to %s over %s\n", conn.RemotePeer(), conn.RemoteAddr())
		},
	}
	cmd.Flags().StringVar(&remoteAddr, "addr", "", "multiaddr to dial, e.g. /ip4/1.2.3.4/udp/4001/quic-v1/p2p/<id>")
	cmd.MarkFlagRequired("addr")
	return cmd
}

func discoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "browse over mDNS (without advertising) and print peer observations until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			_, id, err := newIdentity()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			broadcaster := event.New[mdns.PeerObservation]()
			defer broadcaster.Shutdown()

			svc, err := mdns.New(id, broadcaster)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := svc.Start(ctx, nil); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			defer svc.Stop()

			sub := broadcaster.Subscribe(8)
			defer broadcaster.Unsubscribe(sub)
			for obs := range sub {
				fmt.Printf("%s observed %s (%s)\n", obs.Observer, obs.Subject, obs.Kind)
			}
		},
	}
	return cmd
}
