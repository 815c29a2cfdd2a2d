package refcheck

import (
	"testing"

	"github.com/loom-lang/loom/internal/ir"
)

func TestSubstitutable(t *testing.T) {
	cases := []struct {
		from, to ir.RefKind
		want     bool
	}{
		{ir.KindExclusive, ir.KindExclusive, true},
		{ir.KindExclusive, ir.KindShared, true},
		{ir.KindShared, ir.KindExclusive, false},
		{ir.KindRelaxed, ir.KindShared, false},
		{ir.KindRelaxed, ir.KindExclusive, false},
		{ir.KindRelaxedWeak, ir.KindShared, false},
		{ir.KindRelaxedWeak, ir.KindRelaxedWeak, true},
	}
	for _, tc := range cases {
		if got := Substitutable(tc.from, tc.to); got != tc.want {
			t.Errorf("Substitutable(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestClassifyConversion(t *testing.T) {
	cases := []struct {
		from, to ir.RefKind
		want     convAction
	}{
		{ir.KindExclusive, ir.KindRelaxed, convMultiply},
		{ir.KindExclusive, ir.KindShared, convBorrow},
		{ir.KindRelaxed, ir.KindShared, convClose},
		{ir.KindRelaxed, ir.KindExclusive, convReject},
		{ir.KindShared, ir.KindExclusive, convReject},
		{ir.KindRelaxedWeak, ir.KindExclusive, convReject},
		{ir.KindRelaxedWeak, ir.KindShared, convReject},
		{ir.KindShared, ir.KindRelaxed, convReject},
		{ir.KindRelaxed, ir.KindRelaxedWeak, convReject},
	}
	for _, tc := range cases {
		got, rule := classifyConversion(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("classifyConversion(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
		if got == convReject && rule == "" {
			t.Errorf("classifyConversion(%s, %s) rejected without a rule", tc.from, tc.to)
		}
	}
}

func TestFieldReadKind(t *testing.T) {
	cases := []struct {
		receiver ir.RefKind
		field    ir.FieldKind
		want     ir.RefKind
	}{
		// Relaxed receivers demote: no exclusive handle can be minted
		// through an aliased group, and shared fields come back weak.
		{ir.KindRelaxed, ir.FieldExclusive, ir.KindRelaxed},
		{ir.KindRelaxed, ir.FieldShared, ir.KindRelaxedWeak},
		{ir.KindRelaxedWeak, ir.FieldExclusive, ir.KindRelaxedWeak},
		{ir.KindRelaxedWeak, ir.FieldShared, ir.KindRelaxedWeak},
		{ir.KindExclusive, ir.FieldExclusive, ir.KindExclusive},
		{ir.KindExclusive, ir.FieldShared, ir.KindShared},
		{ir.KindShared, ir.FieldExclusive, ir.KindShared},
		{ir.KindShared, ir.FieldShared, ir.KindShared},
	}
	for _, tc := range cases {
		if got := fieldReadKind(tc.receiver, tc.field); got != tc.want {
			t.Errorf("fieldReadKind(%s, %s) = %s, want %s", tc.receiver, tc.field, got, tc.want)
		}
	}
}
