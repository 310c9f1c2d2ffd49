package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/ledgerlink/internal/auth"
	"github.com/danmuck/ledgerlink/internal/config"
	"github.com/danmuck/ledgerlink/internal/identity"
	"github.com/danmuck/ledgerlink/internal/observability"
	"github.com/danmuck/ledgerlink/internal/overlay"
	"github.com/danmuck/ledgerlink/internal/server"
	"github.com/danmuck/ledgerlink/internal/transport"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func runNode(c *cli.Context) error {
	path := c.String(configFlag.Name)
	nodeCfg, err := config.LoadNodeConfig(path)
	if err != nil {
		return err
	}
	peerCfg, err := loadPeerConfig(path)
	if err != nil {
		return err
	}

	id, created, err := identity.LoadOrCreate(nodeCfg.IdentityFile)
	if err != nil {
		return err
	}
	logger := observability.InitLogger(nodeCfg.Name, id.ID())
	if created {
		logger.Info().Str("path", nodeCfg.IdentityFile).Msg("generated node identity")
	}

	tc := nodeCfg.Transport()
	serverTLS, err := transport.ServerTLSConfig(tc)
	if err != nil {
		return err
	}
	clientTLS, err := transport.ClientTLSConfig(tc, tc.TLS.ServerName)
	if err != nil {
		return err
	}
	port, err := nodeCfg.ListenPort()
	if err != nil {
		return err
	}
	peerCfg.ServerTLS = serverTLS
	peerCfg.ClientTLS = clientTLS
	peerCfg.Dialer = transport.NewDialer(tc)
	peerCfg.ListenPort = port
	peerCfg.ConnectTimeout = tc.ConnectTimeout
	peerCfg.HandshakeTimeout = tc.HandshakeTimeout

	ovCfg := overlay.DefaultConfig()
	ovCfg.MaxPeers = nodeCfg.MaxPeers
	ovCfg.FixedPeers = nodeCfg.FixedPeers
	ovCfg.TrustedNodes = nodeCfg.TrustedNodes
	ovCfg.Peer = peerCfg
	ov, err := overlay.New(ovCfg, id, overlay.Subsystems{})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", nodeCfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", nodeCfg.ListenAddr, err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ov.Listen(gctx, ln) })
	if nodeCfg.StatusAddr != "" {
		var admin auth.Validator
		if nodeCfg.AdminToken != "" {
			admin = auth.StaticToken{Token: nodeCfg.AdminToken}
		}
		status := server.New(nodeCfg.Name, nodeCfg.StatusAddr, nodeCfg.CorsOrigins, ov, admin)
		g.Go(func() error { return status.ListenAndServe(gctx) })
	}
	ov.Start(gctx)
	for _, raw := range c.StringSlice(connectFlag.Name) {
		ep, err := overlay.ParseEndpoint(raw)
		if err != nil {
			return err
		}
		if _, err := ov.Connect(gctx, ep.Host, ep.Port); err != nil {
			logger.Warn().Err(err).Str("endpoint", raw).Msg("connect failed")
		}
	}
	logger.Info().
		Str("listen", ln.Addr().String()).
		Str("status", nodeCfg.StatusAddr).
		Int("fixed_peers", len(nodeCfg.FixedPeers)).
		Msg("node running")

	err = g.Wait()
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cerr := ov.Close(closeCtx); cerr != nil {
		logger.Warn().Err(cerr).Msg("overlay close incomplete")
	}
	logger.Info().Msg("node stopped")
	return err
}

func keygen(c *cli.Context) error {
	out := c.String(outFlag.Name)
	if !c.Bool(forceFlag.Name) {
		if _, err := os.Stat(out); err == nil {
			return fmt.Errorf("identity already exists: %s", out)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	id, err := identity.Generate()
	if err != nil {
		return err
	}
	if err := id.Save(out); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, id.ID())
	return nil
}

func configInit(c *cli.Context) error {
	path := c.String(configFlag.Name)
	if err := config.WriteTemplate(path, c.String(kindFlag.Name), c.Bool(forceFlag.Name)); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}
