// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btclog"
	"github.com/btcsuite/spender/policy"
	"github.com/btcsuite/spender/spend"
	"github.com/btcsuite/spender/unit"
	flags "github.com/jessevdk/go-flags"
)

// config holds the command line options of the spender tool.
type config struct {
	Network      string `long:"network" description:"Network the spend targets" choice:"mainnet" choice:"testnet3" choice:"regtest" choice:"simnet" default:"regtest"`
	Fee          int64  `long:"fee" description:"Absolute fee in satoshis, deducted from the spend amount" default:"500"`
	SigHash      string `long:"sighash" description:"Sighash type every signature commits to" choice:"all" choice:"none" choice:"single" default:"all"`
	AnyOneCanPay bool   `long:"anyonecanpay" description:"Combine the sighash type with the anyone-can-pay flag"`
	DebugLevel   string `long:"debuglevel" description:"Logging level" choice:"off" choice:"warn" choice:"info" choice:"debug" choice:"trace" default:"off"`

	Args struct {
		FundingTx   string   `positional-arg-name:"fundingtx" description:"Hex encoded funding transaction"`
		Destination string   `positional-arg-name:"destination" description:"Destination address"`
		Amount      int64    `positional-arg-name:"amount" description:"Amount to draw from the funding output, in satoshis"`
		Policy      string   `positional-arg-name:"policy" description:"Spending policy, wsh(...) or sh(...)"`
		Keys        []string `positional-arg-name:"wif" description:"WIF encoded signing keys" required:"2"`
	} `positional-args:"yes" required:"yes"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "spender: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagErr, ok := err.(*flags.Error); ok &&
			flagErr.Type == flags.ErrHelp {

			os.Exit(0)
		}
		os.Exit(1)
	}

	setupLogging(cfg.DebugLevel)

	params, err := networkParams(cfg.Network)
	if err != nil {
		return err
	}

	hashType, err := sigHashType(cfg.SigHash, cfg.AnyOneCanPay)
	if err != nil {
		return err
	}

	// Parse and sanity check the policy, then show what it compiles to.
	desc, err := policy.Parse(cfg.Args.Policy)
	if err != nil {
		return err
	}
	if err := desc.SanityCheck(); err != nil {
		return err
	}

	script, err := desc.Script()
	if err != nil {
		return err
	}
	disasm, err := txscript.DisasmString(script)
	if err != nil {
		return err
	}

	addr, err := desc.Address(params)
	if err != nil {
		return err
	}

	maxWeight, err := desc.MaxSatisfactionWeight()
	if err != nil {
		return err
	}

	fmt.Printf("policy script: %s\n", disasm)
	fmt.Printf("policy address: %s\n", addr)
	fmt.Printf("max satisfaction weight: %v\n", unit.WeightUnit(maxWeight))

	rawTx, err := hex.DecodeString(cfg.Args.FundingTx)
	if err != nil {
		return fmt.Errorf("invalid funding tx hex: %w", err)
	}
	fundingTx, err := spend.DecodeFundingTx(rawTx)
	if err != nil {
		return err
	}

	dest, err := btcutil.DecodeAddress(cfg.Args.Destination, params)
	if err != nil {
		return fmt.Errorf("invalid destination address: %w", err)
	}
	if !dest.IsForNet(params) {
		return fmt.Errorf("destination address is not for %s",
			params.Name)
	}

	packet, err := spend.AssembleSpend(&spend.SpendRequest{
		FundingTx:   fundingTx,
		Desc:        desc,
		Destination: dest,
		Amount:      btcutil.Amount(cfg.Args.Amount),
		Fee:         btcutil.Amount(cfg.Fee),
		SigHashType: hashType,
	})
	if err != nil {
		return err
	}

	// Each key signs independently against its own copy of the digest.
	for _, wif := range cfg.Args.Keys {
		signer, err := spend.NewSignerFromWIF(wif, params)
		if err != nil {
			return err
		}
		if err := spend.SignInput(packet, 0, signer); err != nil {
			return err
		}

		fmt.Printf("signed with key: %x\n",
			signer.PubKey().SerializeCompressed())
	}

	b64, err := packet.B64Encode()
	if err != nil {
		return err
	}
	fmt.Printf("signed psbt: %s\n", b64)

	finalTx, err := spend.Finalize(packet, desc)
	if err != nil {
		return err
	}

	var txBuf bytes.Buffer
	if err := finalTx.Serialize(&txBuf); err != nil {
		return err
	}

	weight := unit.WeightUnit(
		blockchain.GetTransactionWeight(btcutil.NewTx(finalTx)),
	)
	feeRate := unit.NewSatPerVByte(btcutil.Amount(cfg.Fee), weight.ToVB())

	fmt.Printf("final tx: %x\n", txBuf.Bytes())
	fmt.Printf("final tx size: %v (%v), fee rate: %v\n", weight,
		weight.ToVB(), feeRate)

	return nil
}

// setupLogging points both library loggers at stderr at the requested level.
func setupLogging(level string) {
	logLevel, ok := btclog.LevelFromString(level)
	if !ok || logLevel == btclog.LevelOff {
		return
	}

	backend := btclog.NewBackend(os.Stderr)

	policyLog := backend.Logger("PLCY")
	policyLog.SetLevel(logLevel)
	policy.UseLogger(policyLog)

	spendLog := backend.Logger("SPND")
	spendLog.SetLevel(logLevel)
	spend.UseLogger(spendLog)
}

func networkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

func sigHashType(name string, anyOneCanPay bool) (txscript.SigHashType,
	error) {

	var hashType txscript.SigHashType
	switch name {
	case "all":
		hashType = txscript.SigHashAll
	case "none":
		hashType = txscript.SigHashNone
	case "single":
		hashType = txscript.SigHashSingle
	default:
		return 0, fmt.Errorf("unknown sighash type %q", name)
	}

	if anyOneCanPay {
		hashType |= txscript.SigHashAnyOneCanPay
	}

	return hashType, nil
}
