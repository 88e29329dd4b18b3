package abysmal_test

import (
	"testing"

	"github.com/zillow/abysmal"
	"github.com/zillow/abysmal/decimal"
)

// BenchmarkIceCreamPricingCompiled measures evaluating the ice cream
// pricing rule through a compiled Abysmal program.
func BenchmarkIceCreamPricingCompiled(b *testing.B) {
	src := "@start:\n" +
		"price = scoops * 2.5\n" +
		"price = scoops in [4, 1000000] ? price * 0.9 : price\n" +
		"price = price + (delivery ? 1.5 : 0)\n"
	result, err := abysmal.Compile(src, []string{"scoops", "delivery", "price"}, nil)
	if err != nil {
		b.Fatalf("Compile: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := abysmal.NewMachine(result)
		m.Set("scoops", "5")
		m.Set("delivery", "1")
		if err := m.Run(); err != nil {
			b.Fatalf("Run: %v", err)
		}
	}
}

// BenchmarkIceCreamPricingNative measures the same computation written
// directly in Go, as a baseline comparison for the compiled path above —
// the same comparison the original implementation's benchmark suite
// drew between Abysmal and hand-written native code.
func BenchmarkIceCreamPricingNative(b *testing.B) {
	scoops := decimal.MustParse("5")
	perScoop := decimal.MustParse("2.5")
	discount := decimal.MustParse("0.9")
	deliveryFee := decimal.MustParse("1.5")
	four := decimal.MustParse("4")

	for i := 0; i < b.N; i++ {
		price, _ := scoops.Mul(perScoop)
		if scoops.Cmp(four) >= 0 {
			price, _ = price.Mul(discount)
		}
		price, _ = price.Add(deliveryFee)
		_ = price
	}
}
