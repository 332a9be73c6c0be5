package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestApplyFunds_ClampsAtZero(t *testing.T) {
	c := &Company{Funds: decimal.NewFromInt(100)}

	shortfall := c.ApplyFunds(decimal.NewFromInt(-250))

	assert.True(t, c.Funds.IsZero(), "funds must never go negative")
	assert.True(t, shortfall.Equal(decimal.NewFromInt(150)), "shortfall %s", shortfall)
}

func TestApplyFunds_Credit(t *testing.T) {
	c := &Company{Funds: decimal.NewFromInt(100)}

	shortfall := c.ApplyFunds(decimal.NewFromInt(50))

	assert.True(t, c.Funds.Equal(decimal.NewFromInt(150)))
	assert.True(t, shortfall.IsZero())
}

func TestEmployeeSuccessRate(t *testing.T) {
	e := &Employee{}
	assert.Zero(t, e.SuccessRate())

	e.DecisionsMade = 4
	e.DecisionsApproved = 3
	assert.InDelta(t, 0.75, e.SuccessRate(), 1e-9)
}
