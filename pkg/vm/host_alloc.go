package vm

import "github.com/kristofer/smog/pkg/value"

// Intern, AllocString, AllocList, and Track expose the VM's string
// interner and GC tracking to native modules (pkg/stdlib and any host
// embedder), which otherwise have no way to produce a heap value the
// collector knows about (spec 6, "Host API").
func (vm *VM) Intern(s string) *value.String { return vm.internGo(s) }

func (vm *VM) AllocString(b []byte) value.Value { return vm.allocString(b) }

func (vm *VM) AllocList(items []value.Value) value.Value { return vm.allocList(items) }

func (vm *VM) Track(o value.Object) { vm.track(o) }
