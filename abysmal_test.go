package abysmal_test

import (
	"fmt"
	"testing"

	"github.com/zillow/abysmal"
	"github.com/zillow/abysmal/decimal"
)

func TestCompileAndRunIceCreamPricing(t *testing.T) {
	src := "@start:\n" +
		"price = scoops * 2.5\n" +
		"price = scoops in [4, 1000000] ? price * 0.9 : price\n" +
		"price = price + (delivery ? 1.5 : 0)\n"

	result, err := abysmal.Compile(src, []string{"scoops", "delivery", "price"}, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	m := abysmal.NewMachine(result)
	if err := m.Set("scoops", "5"); err != nil {
		t.Fatalf("Set scoops: %v", err)
	}
	if err := m.Set("delivery", "1"); err != nil {
		t.Fatalf("Set delivery: %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := m.Get("price")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// 5 scoops * 2.5 = 12.5, discounted 10% for 4+ scoops = 11.25, plus
	// 1.5 delivery = 12.75.
	if got != "12.75" {
		t.Errorf("price = %s, want 12.75", got)
	}
}

func TestCompileWithDeclaredConstants(t *testing.T) {
	src := "@start:\nout = rate * amount\n"
	result, err := abysmal.Compile(src, []string{"amount", "out"}, map[string]decimal.Decimal{
		"rate": decimal.MustParse("0.2"),
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	m := abysmal.NewMachine(result)
	if err := m.Set("amount", "50"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := m.Get("out")
	if got != "10" {
		t.Errorf("out = %s, want 10", got)
	}
}

func TestCompileRejectsUndefinedVariable(t *testing.T) {
	_, err := abysmal.Compile("@start:\nx = y\n", []string{"x"}, nil)
	if err == nil {
		t.Fatal("expected compilation error for undefined variable")
	}
}

func TestCompileRejectsCycle(t *testing.T) {
	_, err := abysmal.Compile("@a:\n=> @b\n@b:\n=> @a\n", nil, nil)
	if err == nil {
		t.Fatal("expected compilation error for a state-graph cycle")
	}
}

func TestCompileWithBranches(t *testing.T) {
	src := "@start:\n" +
		"total > 100 => @discount\n" +
		"=> @done\n" +
		"@discount:\n" +
		"total = total * 0.9\n" +
		"@done:\n"
	result, err := abysmal.Compile(src, []string{"total"}, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	m := abysmal.NewMachine(result)
	if err := m.Set("total", "200"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := m.Get("total")
	if got != "180" {
		t.Errorf("total = %s, want 180", got)
	}
}

func TestCompileWithSetMembership(t *testing.T) {
	src := "@start:\nok = code in { 1, 2, 3 }\n"
	result, err := abysmal.Compile(src, []string{"code", "ok"}, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	m := abysmal.NewMachine(result)
	m.Set("code", "2")
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := m.Get("ok")
	if got != "1" {
		t.Errorf("ok = %s, want 1", got)
	}
}

func ExampleCompile() {
	src := "@start:\ndoubled = n * 2\n"
	result, err := abysmal.Compile(src, []string{"n", "doubled"}, nil)
	if err != nil {
		panic(err)
	}
	m := abysmal.NewMachine(result)
	m.Set("n", "21")
	m.Run()
	v, _ := m.Get("doubled")
	fmt.Println(v)
	// Output: 42
}
