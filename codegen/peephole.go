package codegen

import "github.com/zillow/abysmal/decimal"

// rewriteZeroOne replaces `Lc 0` and `Lc 1` with the dedicated Lz/Lo
// opcodes before constant-usage counting runs, so 0 and 1 never occupy a
// constant slot no matter how often they're used.
func rewriteZeroOne(g *generator) {
	for i, in := range g.instrs {
		if in.op != "Lc" {
			continue
		}
		switch {
		case in.constant.Equal(decimal.Zero):
			g.instrs[i] = inst{op: "Lz", line: in.line}
		case in.constant.Equal(decimal.One):
			g.instrs[i] = inst{op: "Lo", line: in.line}
		}
	}
}

// runPeepholes applies the three control-flow simplification passes to a
// fixed point: collapsing jump chains, pruning unreachable code, and
// removing jumps to the very next instruction. Label markers are left in
// place throughout — only assignSlotsAndEmit (in emit.go) strips them,
// once addresses are final.
func runPeepholes(g *generator) {
	for {
		a := collapseJumpChains(g)
		b := pruneUnreachable(g)
		c := removeNextInstructionJumps(g)
		if !a && !b && !c {
			return
		}
	}
}

func isJump(op string) bool { return op == "Ju" || op == "Jn" || op == "Jz" }

// collapseJumpChains retargets any jump whose target label sits
// immediately before another unconditional jump to that jump's own
// target instead, so a chain of Ju's collapses to a single hop. A Ju
// instruction (not Jn/Jz, which still need their condition popped) whose
// resolved target is Xx becomes an Xx itself.
func collapseJumpChains(g *generator) bool {
	changed := false
	labelIndex := indexLabels(g)
	for i, in := range g.instrs {
		if !isJump(in.op) {
			continue
		}
		target, ok := labelIndex[in.label]
		if !ok {
			continue
		}
		// Skip past label markers to the first real instruction.
		j := target
		for j < len(g.instrs) && g.instrs[j].op == "" {
			j++
		}
		if j >= len(g.instrs) {
			continue
		}
		if in.op == "Ju" && g.instrs[j].op == "Xx" {
			g.instrs[i] = inst{op: "Xx", line: in.line}
			changed = true
			continue
		}
		if g.instrs[j].op == "Ju" && g.instrs[j].label != in.label {
			g.instrs[i].label = g.instrs[j].label
			changed = true
		}
	}
	return changed
}

// pruneUnreachable removes instructions that can never execute: anything
// strictly between an unconditional jump/halt and the next label marker
// that something actually branches to.
func pruneUnreachable(g *generator) bool {
	referenced := make(map[string]bool)
	for _, in := range g.instrs {
		if isJump(in.op) {
			referenced[in.label] = true
		}
	}
	var out []inst
	dead := false
	changed := false
	for _, in := range g.instrs {
		if in.op == "" { // label marker
			if referenced[in.label] {
				dead = false
			}
			out = append(out, in)
			continue
		}
		if dead {
			changed = true
			continue
		}
		out = append(out, in)
		if in.op == "Ju" || in.op == "Xx" {
			dead = true
		}
	}
	g.instrs = out
	return changed
}

// removeNextInstructionJumps deletes an unconditional jump (Ju) whose
// resolved target is the instruction immediately following it — a no-op
// introduced by earlier folding of ternaries and short-circuit logic. Jn
// and Jz are kept even then, since they still pop their condition.
func removeNextInstructionJumps(g *generator) bool {
	labelIndex := indexLabels(g)
	var out []inst
	changed := false
	for i := 0; i < len(g.instrs); i++ {
		in := g.instrs[i]
		if in.op == "Ju" {
			if target, ok := labelIndex[in.label]; ok {
				j := target
				for j < len(g.instrs) && g.instrs[j].op == "" {
					j++
				}
				if j == nextRealIndex(g.instrs, i) {
					changed = true
					continue
				}
			}
		}
		out = append(out, in)
	}
	g.instrs = out
	return changed
}

func nextRealIndex(instrs []inst, from int) int {
	i := from + 1
	for i < len(instrs) && instrs[i].op == "" {
		i++
	}
	return i
}

func indexLabels(g *generator) map[string]int {
	idx := make(map[string]int, len(g.instrs))
	for i, in := range g.instrs {
		if in.op == "" {
			idx[in.label] = i
		}
	}
	return idx
}
