package broker

import (
	"context"
	"testing"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

func TestMockBridgeOpenAndCloseOrder(t *testing.T) {
	b := NewMockBridge(types.Account{Balance: 10000, Equity: 10000, FreeMargin: 10000})
	ctx := context.Background()

	result, err := b.OpenOrder(ctx, OrderRequest{Symbol: "EURUSD", Direction: types.DirectionLong, Volume: 0.1})
	if err != nil || !result.Success || result.Ticket == 0 {
		t.Fatalf("OpenOrder = %+v, %v", result, err)
	}

	pos, ok, err := b.GetPosition(ctx, "EURUSD")
	if err != nil || !ok || pos.Ticket != result.Ticket {
		t.Fatalf("GetPosition = %+v, %v, %v", pos, ok, err)
	}

	closeResult, err := b.CloseOrder(ctx, result.Ticket)
	if err != nil || !closeResult.Success {
		t.Fatalf("CloseOrder = %+v, %v", closeResult, err)
	}
	if _, ok, _ := b.GetPosition(ctx, "EURUSD"); ok {
		t.Fatal("expected position removed after close")
	}
}

func TestMockBridgeOpenOrderFailureInjection(t *testing.T) {
	b := NewMockBridge(types.Account{})
	b.FailOpenOrder = types.ErrOrderRejected

	_, err := b.OpenOrder(context.Background(), OrderRequest{Symbol: "EURUSD", Volume: 0.1})
	if err != types.ErrOrderRejected {
		t.Fatalf("expected injected failure, got %v", err)
	}
}
