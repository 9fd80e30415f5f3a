// Copyright 2018 The gVisor Authors.
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

package eni

import "testing"

func TestStatusAttribution(t *testing.T) {
	for _, tc := range []struct {
		status   Status
		callee   bool
		host     bool
		wantName string
	}{
		{SUCCESS, false, false, "SUCCESS"},
		{FAILURE, false, true, "FAILURE"},
		{RESOURCE_BUSY, false, true, "RESOURCE_BUSY"},
		{SECCOMP_FAIL, false, true, "SECCOMP_FAIL"},
		{TLE, true, false, "TLE"},
		{KILLED, true, false, "KILLED"},
		{SEGFAULT, true, false, "SEGFAULT"},
		{NULL_RESULT, true, false, "NULL_RESULT"},
	} {
		if got := tc.status.IsCalleeAttributable(); got != tc.callee {
			t.Errorf("%v.IsCalleeAttributable() = %v, want %v", tc.status, got, tc.callee)
		}
		if got := tc.status.IsHostAttributable(); got != tc.host {
			t.Errorf("%v.IsHostAttributable() = %v, want %v", tc.status, got, tc.host)
		}
		if got := tc.status.String(); got != tc.wantName {
			t.Errorf("%v.String() = %q, want %q", tc.status, got, tc.wantName)
		}
	}
}

func TestStatusNumericContractIsStable(t *testing.T) {
	// These values double as the child's raw exit codes; renumbering any
	// of them is a breaking change to the wire contract.
	for status, want := range map[Status]int{
		SUCCESS:       0,
		FAILURE:       11,
		RESOURCE_BUSY: 12,
		SECCOMP_FAIL:  13,
		TLE:           21,
		KILLED:        22,
		SEGFAULT:      23,
		NULL_RESULT:   24,
	} {
		if int(status) != want {
			t.Errorf("status %s = %d, want %d", status, int(status), want)
		}
	}
}
