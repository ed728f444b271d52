package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/taurusgroup/threshold-pre/internal/test"
	"github.com/taurusgroup/threshold-pre/pkg/node"
	"github.com/taurusgroup/threshold-pre/pkg/policy"
	"github.com/taurusgroup/threshold-pre/pkg/pre"
)

func Grant(ctx context.Context, m *policy.Manager, alice *pre.SecretKey, bob *pre.PublicKey, threshold, shares int) (*policy.Policy, error) {
	signer := pre.NewSigner(pre.NewSecretKey())
	p, err := m.CreatePolicy(ctx, policy.Params{
		Label:     "example",
		Receiving: bob,
		Threshold: threshold,
		Shares:    shares,
		Duration:  time.Hour,
	}, alice, signer)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func Retrieve(ctx context.Context, m *policy.Manager, p *policy.Policy, bob *pre.SecretKey, capsule *pre.Capsule, ciphertext []byte) ([]byte, error) {
	responses, err := m.Reencrypt(ctx, p.ID, capsule)
	if err != nil {
		return nil, err
	}
	for _, fragErr := range responses.Errors {
		logrus.WithError(fragErr).Warn("fragment rejected")
	}
	return responses.Decrypt(bob, capsule, ciphertext)
}

func All(ctx context.Context, m *policy.Manager, threshold, shares int, message []byte) error {
	alice, bob := pre.NewSecretKey(), pre.NewSecretKey()
	defer alice.Destroy()
	defer bob.Destroy()

	// ENCRYPT
	capsule, ciphertext, err := pre.Encrypt(alice.PublicKey(), message)
	if err != nil {
		return err
	}

	// GRANT
	p, err := Grant(ctx, m, alice, bob.PublicKey(), threshold, shares)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"policy": p.ID, "accepted": len(p.Accepted())}).Info("policy granted")

	// RETRIEVE
	plaintext, err := Retrieve(ctx, m, p, bob, capsule, ciphertext)
	if err != nil {
		return err
	}
	logrus.WithField("plaintext", string(plaintext)).Info("bob decrypted the message")

	// REVOKE
	if err = m.Revoke(ctx, p.ID); err != nil {
		return err
	}
	if _, err = Retrieve(ctx, m, p, bob, capsule, ciphertext); !errors.Is(err, pre.ErrRevokedPolicy) {
		return fmt.Errorf("expected revoked policy, got %v", err)
	}
	logrus.WithField("policy", p.ID).Info("policy revoked")
	return nil
}

func main() {
	var (
		configPath string
		nodes      int
		offline    int
		threshold  int
		shares     int
	)
	pflag.StringVarP(&configPath, "config", "c", "", "TOML file with the manager configuration")
	pflag.IntVarP(&nodes, "nodes", "n", 6, "number of re-encryption nodes")
	pflag.IntVar(&offline, "offline", 1, "number of nodes which never answer")
	pflag.IntVarP(&threshold, "threshold", "m", 2, "fragments needed to decrypt")
	pflag.IntVar(&shares, "shares", 3, "fragments the key is split into")
	pflag.Parse()

	cfg := policy.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = policy.LoadConfig(configPath); err != nil {
			logrus.WithError(err).Fatal("failed to load config")
		}
	}
	cfg.Logger = logrus.StandardLogger()

	net := test.NewNetwork()
	ids := test.PartyIDs(nodes)
	ursulas := make([]policy.Node, 0, len(ids))
	for _, id := range ids {
		ursulas = append(ursulas, node.New(node.Config{ID: id, Logger: cfg.Logger}, node.NewMemoryStore()))
	}
	for _, id := range ids[:min(offline, len(ids))] {
		net.SetOffline(id, true)
	}

	ctx := context.Background()
	m, err := policy.NewManager(ctx, cfg, policy.NewMemoryStore(), net.Connect(ursulas...))
	if err != nil {
		logrus.WithError(err).Fatal("failed to start manager")
	}
	defer m.Close()

	if err = All(ctx, m, threshold, shares, []byte("hello")); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	for _, id := range ids {
		logrus.WithFields(logrus.Fields{"node": id, "offers": net.Offers(id), "requests": net.Requests(id)}).Debug("traffic")
	}
}

