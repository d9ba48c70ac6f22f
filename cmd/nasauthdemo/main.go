// Copyright 2019-2020 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Command nasauthdemo drives the UE-side NAS authentication core
// against a canned 5G-AKA challenge, loading USIM credentials from a
// YAML config file in the style of the NAS encoder's JSON-config
// loader.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/TheLurkingCat/ueransim-go/authcore"
)

// usimFile mirrors the fields an operator burns into a USIM, plus the
// serving network identifiers the authentication core needs.
type usimFile struct {
	K    string `yaml:"k"`
	OPc  string `yaml:"opc"`
	SUPI string `yaml:"supi"`
	MCC  int    `yaml:"mcc"`
	MNC  int    `yaml:"mnc"`
	SQN  string `yaml:"sqn"`
}

// challengeFile is a canned AuthenticationRequest for the demo to feed
// through the controller, as a network's AUSF would send it.
type challengeFile struct {
	NgKSI int    `yaml:"ngksi"`
	Rand  string `yaml:"rand"`
	Autn  string `yaml:"autn"`
	Abba  string `yaml:"abba"`
}

func loadUSIM(filename string) *usimFile {
	raw, err := os.ReadFile(filename)
	if err != nil {
		log.WithError(err).Fatal("failed to read USIM config")
	}
	var u usimFile
	if err := yaml.Unmarshal(raw, &u); err != nil {
		log.WithError(err).Fatal("failed to parse USIM config")
	}
	return &u
}

func loadChallenge(filename string) *challengeFile {
	raw, err := os.ReadFile(filename)
	if err != nil {
		log.WithError(err).Fatal("failed to read challenge file")
	}
	var c challengeFile
	if err := yaml.Unmarshal(raw, &c); err != nil {
		log.WithError(err).Fatal("failed to parse challenge file")
	}
	return &c
}

func decodeHexField(name, s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		log.WithError(err).Fatalf("failed to decode %s", name)
	}
	return b
}

func main() {
	usimPath := flag.String("usim", "usim.yaml", "path to the USIM configuration file")
	challengePath := flag.String("challenge", "challenge.yaml", "path to the canned AuthenticationRequest file")
	flag.Parse()

	u := loadUSIM(*usimPath)
	ch := loadChallenge(*challengePath)

	cfg := &authcore.USIMConfig{
		K:      decodeHexField("k", u.K),
		OPc:    decodeHexField("opc", u.OPc),
		OpType: authcore.OpTypeOPc,
		SUPI:   u.SUPI,
		MCC:    u.MCC,
		MNC:    u.MNC,
	}

	sqnMgr := authcore.NewSimpleSqnManager(decodeHexField("sqn", u.SQN))
	controller := authcore.NewController(cfg, sqnMgr, nil, nil)

	req := &authcore.AuthenticationRequest{
		NgKSI:  ch.NgKSI,
		Native: true,
		Rand:   decodeHexField("rand", ch.Rand),
		Autn:  decodeHexField("autn", ch.Autn),
		Abba:  decodeHexField("abba", ch.Abba),
	}

	resp, _, fail, err := controller.ReceiveAuthenticationRequest(req)
	if err != nil {
		log.WithError(err).Fatal("authentication request processing failed")
	}
	if fail != nil {
		fmt.Printf("AuthenticationFailure: cause=%d auts=%s\n", fail.Cause, hex.EncodeToString(fail.Auts))
		return
	}
	fmt.Printf("AuthenticationResponse: RES*=%s\n", hex.EncodeToString(resp.ResStar))
	fmt.Printf("KAUSF=%s\n", hex.EncodeToString(controller.NonCurrentNsCtx.Keys.Kausf))
	fmt.Printf("KSEAF=%s\n", hex.EncodeToString(controller.NonCurrentNsCtx.Keys.Kseaf))
	fmt.Printf("KAMF=%s\n", hex.EncodeToString(controller.NonCurrentNsCtx.Keys.Kamf))

	for _, ev := range controller.Log.Recent() {
		fmt.Printf("[%s] %s: %s\n", ev.At.Format("15:04:05.000"), ev.Stage, ev.Message)
	}
}
