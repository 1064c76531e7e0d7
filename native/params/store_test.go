package params

import (
	"errors"
	"math/big"
	"testing"

	"quadlend/state"
	"quadlend/storage"
)

type sample struct {
	Rate   *big.Int `json:"rate"`
	Assets []string `json:"assets"`
}

func TestStoreJSONRoundTrip(t *testing.T) {
	store := NewStore(state.NewStore(storage.NewMemDB()))

	var out sample
	if err := store.GetJSON("lending.config", &out); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	in := sample{Rate: big.NewInt(1_000_130_400_000_000_000), Assets: []string{"WETH"}}
	if err := store.PutJSON("lending.config", in); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.GetJSON("lending.config", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Rate.Cmp(in.Rate) != 0 || len(out.Assets) != 1 || out.Assets[0] != "WETH" {
		t.Fatalf("unexpected round trip %+v", out)
	}
	raw, ok, err := store.Raw("lending.config")
	if err != nil || !ok {
		t.Fatalf("raw: ok=%v err=%v", ok, err)
	}
	if string(raw) != `{"rate":1000130400000000000,"assets":["WETH"]}` {
		t.Fatalf("unexpected document %s", raw)
	}
}

func TestStoreRequiresState(t *testing.T) {
	var store *Store
	if err := store.PutJSON("x", 1); err == nil {
		t.Fatalf("expected error without state")
	}
	bad := NewStore(state.NewStore(storage.NewMemDB()))
	if err := bad.state.ParamStoreSet("x", []byte("{")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var out sample
	if err := bad.GetJSON("x", &out); err == nil {
		t.Fatalf("expected decode error")
	}
}
