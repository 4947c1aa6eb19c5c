package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/codec"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/logger"
)

// #region serve

func runServe(cmd *cobra.Command, args []string) error {
	suite, closeSuite, err := cli.suite()
	if err != nil {
		return err
	}
	defer closeSuite()

	lis, err := net.Listen("tcp", cli.cfg.ServeAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cli.cfg.ServeAddr, err)
	}
	s := grpc.NewServer()
	codec.Register(s, suite, logger.Named("codec"))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cli.log.Info(cmd.Context(), "shutting down collaborator service")
		s.GracefulStop()
	}()

	cli.log.Info(cmd.Context(), "collaborator service listening",
		logger.String("addr", lis.Addr().String()), logger.String("backend", cli.cfg.Collaborators))
	if err := s.Serve(lis); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// #endregion serve
