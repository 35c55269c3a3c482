package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/poi-list/provider/chainobserver"
	"github.com/poi-list/provider/config"
	"github.com/poi-list/provider/policygate"
	"github.com/poi-list/provider/signer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the list provider's YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}

	s, err := loadOrGenerateSigner(cfg.KeyFile)
	if err != nil {
		panic(fmt.Sprintf("load signer: %v", err))
	}
	logrus.WithField("listKey", s.ListKey()).Info("list provider starting")

	observer := chainobserver.NewEVMObserver(cfg)
	gate := policygate.NewAddressBlocklist(cfg.BlockedAddresses, cfg.BlockReason)

	srv, err := NewServer(cfg, s, observer, gate)
	if err != nil {
		panic(fmt.Sprintf("build server: %v", err))
	}

	srv.Run()
	for i := 0; i < srv.NumWorkers(); i++ {
		<-srv.Finish()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	fmt.Println("list provider stopped gracefully")
}

// loadOrGenerateSigner loads the process's Ed25519 key from path, or - on
// first run - generates one and persists it there, so listKey is stable
// across restarts (S7 "restart durability").
func loadOrGenerateSigner(path string) (*signer.Signer, error) {
	s, err := signer.LoadFromFile(path)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	s, err = signer.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := s.SaveToFile(path); err != nil {
		return nil, fmt.Errorf("save key to %s: %w", path, err)
	}
	return s, nil
}
