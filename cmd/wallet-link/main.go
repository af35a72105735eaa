package main

import (
	"context"

	"flowwallet.io/wallet-link/internal/config"
	"flowwallet.io/wallet-link/internal/http"
	"flowwallet.io/wallet-link/internal/relay"
	"flowwallet.io/wallet-link/internal/starter"
	"flowwallet.io/wallet-link/internal/ui"
	"flowwallet.io/wallet-link/internal/wallet"
	"flowwallet.io/wallet-link/internal/walletconnect"
	"flowwallet.io/wallet-link/pkg/errors"
	"flowwallet.io/wallet-link/pkg/log"
)

func main() {
	log.Infof("Starting app")
	startApp()
}

func startApp() {
	defer func() {
		if i := recover(); i != nil {
			log.Fatal(errors.ErrorfAndReport("%v", i))
		}
	}()
	config.Read()
	log.SetLevel(config.Global.LogLevel)
	if err := errors.NewSentryReporter(config.Global.SentryDSN); err != nil {
		log.Error(err)
	}

	ctx := context.Background()
	client := relay.NewClient(config.Global.Relay, config.Global.Wallet)
	if err := client.Dial(ctx); err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	prompter := ui.NewTerminalPrompter()
	manager := walletconnect.NewManager(walletconnect.Deps{
		Client:   client,
		Wallet:   newWalletProvider(config.Global.Account),
		Sponsor:  wallet.NewSponsor(config.Global.Sponsor, newSponsorSigner(config.Global.Sponsor)),
		Prompter: prompter,
		Router:   prompter,
		Notifier: prompter,
		Observer: prompter,
	})

	starter.Start(ctx, manager)
	defer starter.Stop(manager)

	http.NewServer(config.Global.HTTPListen, manager, client)
}

func newWalletProvider(conf config.Account) wallet.Provider {
	var signFn wallet.SignFn
	if conf.PrivateKey != "" {
		fn, err := wallet.NewSecp256k1Signer(conf.PrivateKey)
		if err != nil {
			log.Fatal(err)
		}
		signFn = fn
	}
	account := &wallet.Account{
		UserID:   conf.UserID,
		Nickname: conf.Nickname,
		Avatar:   conf.Avatar,
	}
	return wallet.NewLocalProvider(conf.Address, conf.KeyIndex, account, signFn)
}

func newSponsorSigner(conf config.Sponsor) wallet.SignVoucherFn {
	if conf.PrivateKey == "" {
		return nil
	}
	fn, err := wallet.NewSecp256k1Signer(conf.PrivateKey)
	if err != nil {
		log.Fatal(err)
	}
	return wallet.NewVoucherSigner(fn)
}
