package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEvent_KeyIgnoresTrailingZeros(t *testing.T) {
	a := &Event{Signature: "sig1", Mint: "mintA", Action: ActionBuy, Amount: decimal.RequireFromString("5.000")}
	b := &Event{Signature: "sig1", Mint: "mintA", Action: ActionBuy, Amount: decimal.NewFromInt(5)}

	assert.Equal(t, a.Key(), b.Key())
	assert.Len(t, a.Key(), 64)
}

func TestEvent_KeyDistinguishesFields(t *testing.T) {
	base := Event{Signature: "sig1", Mint: "mintA", Action: ActionBuy, Amount: decimal.NewFromInt(5)}

	other := base
	other.Action = ActionSell
	assert.NotEqual(t, base.Key(), other.Key())

	other = base
	other.Mint = "mintB"
	assert.NotEqual(t, base.Key(), other.Key())

	other = base
	other.Amount = decimal.NewFromInt(6)
	assert.NotEqual(t, base.Key(), other.Key())

	// wallet and fee are not part of the key
	other = base
	other.Wallet = "someone-else"
	other.Fee = decimal.NewFromFloat(0.000005)
	assert.Equal(t, base.Key(), other.Key())
}

func TestEvent_Validate(t *testing.T) {
	valid := &Event{
		Wallet:    "w",
		Signature: "s",
		Mint:      "m",
		Action:    ActionSell,
		Amount:    decimal.NewFromInt(1),
	}
	assert.NoError(t, valid.Validate())

	bad := *valid
	bad.Action = "HODL"
	assert.Error(t, bad.Validate())

	bad = *valid
	bad.Amount = decimal.NewFromInt(-1)
	assert.Error(t, bad.Validate())

	bad = *valid
	bad.Mint = ""
	assert.Error(t, bad.Validate())

	var nilEvent *Event
	assert.Error(t, nilEvent.Validate())
}
