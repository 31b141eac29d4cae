// Copyright 2025 Matt Ramotar. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package convert

import "testing"

func TestIdentityConverter_RoundTrips(t *testing.T) {
	var c IdentityConverter[int]

	l, err := c.NetworkToLocal(5)
	if err != nil || l != 5 {
		t.Fatalf("NetworkToLocal: got (%v, %v)", l, err)
	}
	v, err := c.LocalToDomain(l)
	if err != nil || v != 5 {
		t.Fatalf("LocalToDomain: got (%v, %v)", v, err)
	}
	l2, err := c.DomainToLocal(v)
	if err != nil || l2 != 5 {
		t.Fatalf("DomainToLocal: got (%v, %v)", l2, err)
	}
}

func TestAlwaysValid_AcceptsAnyValue(t *testing.T) {
	v := AlwaysValid[string]()
	if !v.IsValid("") || !v.IsValid("anything") {
		t.Fatalf("expected AlwaysValid to accept all values")
	}
}

func TestValidatorFunc_DelegatesToFunction(t *testing.T) {
	v := ValidatorFunc[int](func(n int) bool { return n > 0 })
	if v.IsValid(-1) {
		t.Fatalf("expected -1 to be invalid")
	}
	if !v.IsValid(1) {
		t.Fatalf("expected 1 to be valid")
	}
}
