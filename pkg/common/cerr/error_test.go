// Copyright 2025 CascadeDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCerrCode(t *testing.T) {
	ctx := context.Background()

	err := NewRemoteRun(ctx, "executor panic")
	assert.True(t, IsCerrCode(err, ErrRemoteRun))
	assert.False(t, IsCerrCode(err, ErrInternal))
	assert.True(t, IsCerrCode(nil, Ok))

	assert.False(t, IsCerrCode(errors.New("plain"), ErrRemoteRun))
}

func TestErrorsIs(t *testing.T) {
	ctx := context.Background()

	err := NewBackendClosed(ctx)
	assert.True(t, errors.Is(err, NewBackendClosed(ctx)))
	assert.False(t, errors.Is(err, NewStreamClosed(ctx)))
}

func TestMessageFormatting(t *testing.T) {
	ctx := context.Background()

	err := NewInvalidState(ctx, "stream %d already closed", 3)
	assert.Equal(t, "invalid state: stream 3 already closed", err.Error())
	assert.Equal(t, ErrInvalidState, err.Code())
}
