package p2p_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	"github.com/ardanlabs/blocknode/foundation/blockchain/p2p"
	"github.com/ethereum/go-ethereum/common"
)

func Test_ParseMessage(t *testing.T) {
	type table struct {
		name    string
		line    string
		command string
		payload string
		fail    bool
	}

	tt := []table{
		{name: "connect", line: "CONNECT\n", command: "CONNECT"},
		{name: "ack", line: "ACK hello there\n", command: "ACK", payload: "hello there"},
		{name: "crlf", line: "INV []\r\n", command: "INV", payload: "[]"},
		{name: "unknown", line: "PING 1\n", command: "PING", payload: "1"},
		{name: "empty", line: "\n", fail: true},
		{name: "space", line: " INV []\n", fail: true},
	}

	t.Log("Given the need to parse protocol lines.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				msg, err := p2p.ParseMessage(tst.line)

				switch tst.fail {
				case true:
					if !errors.Is(err, p2p.ErrMalformedMessage) {
						t.Fatalf("\t%s\tTest %d:\tShould reject the line: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould reject the line.", success, testID)

				default:
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould parse the line: %v", failed, testID, err)
					}
					if msg.Command != tst.command || msg.Payload != tst.payload {
						t.Fatalf("\t%s\tTest %d:\tShould split the command and payload: %+v", failed, testID, msg)
					}
					t.Logf("\t%s\tTest %d:\tShould split the command and payload.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Payloads(t *testing.T) {
	t.Log("Given the need to carry hashes and blocks as text.")
	{
		h1 := common.HexToHash("0xaa")
		h2 := common.HexToHash("0xbb")

		inv, err := p2p.NewInv([]common.Hash{h1, h2})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build an INV: %v", failed, err)
		}

		line := string(inv.Format())
		msg, err := p2p.ParseMessage(line)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to parse an INV: %v", failed, err)
		}

		hashes, err := p2p.DecodeInv(msg.Payload)
		if err != nil || len(hashes) != 2 || hashes[0] != h1 || hashes[1] != h2 {
			t.Fatalf("\t%s\tShould decode the announced hashes: %v", failed, err)
		}
		t.Logf("\t%s\tShould decode the announced hashes.", success)

		empty, _ := p2p.NewInv(nil)
		if empty.Payload != "[]" {
			t.Fatalf("\t%s\tShould announce an empty list as [], got %q.", failed, empty.Payload)
		}
		t.Logf("\t%s\tShould announce an empty list as [].", success)

		got, err := p2p.DecodeGetData(p2p.NewGetData(h1).Payload)
		if err != nil || got != h1 {
			t.Fatalf("\t%s\tShould decode the requested hash: %v", failed, err)
		}
		t.Logf("\t%s\tShould decode the requested hash.", success)

		if _, err := p2p.DecodeGetData(`"0x1234"`); !errors.Is(err, p2p.ErrMalformedMessage) {
			t.Fatalf("\t%s\tShould reject a short hash: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a short hash.", success)

		b := database.NewGenesisBlock(100)
		bm, err := p2p.NewBlock(b)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build a BLOCK: %v", failed, err)
		}

		gotBlock, err := p2p.DecodeBlock(bm.Payload)
		if err != nil || gotBlock != b {
			t.Fatalf("\t%s\tShould decode the delivered block: %v", failed, err)
		}
		t.Logf("\t%s\tShould decode the delivered block.", success)

		if _, err := p2p.DecodeBlock(`{"header":{}}`); !errors.Is(err, p2p.ErrMalformedMessage) {
			t.Fatalf("\t%s\tShould reject a block without a hash: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a block without a hash.", success)

		ack := p2p.NewAck("line one\nline two")
		if ack.Payload != "line one line two" {
			t.Fatalf("\t%s\tShould keep an ACK on one line, got %q.", failed, ack.Payload)
		}
		t.Logf("\t%s\tShould keep an ACK on one line.", success)
	}
}
