/*
 * Copyright 2021 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package rewrite

// ActionKind tags what kind of effect a recorded action has, which governs
// the guards-before-mutations ordering constraint.
type ActionKind int

const (
	ActionNormal ActionKind = iota
	ActionMutation
	ActionGuard
)

// action is one recorded closure with its associated set of consumed RVars.
// The closure captures everything it needs inline (operands, immediates,
// offsets) so the action list is a flat, trivially-replayable queue — no
// separate operand-stack bookkeeping is needed at emit time.
type action struct {
	kind     ActionKind
	consumes []*RVar
	produces *RVar
	emit     func(rw *Rewriter)
	debug    string
}
