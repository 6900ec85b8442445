// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"

	"github.com/gardener/logdispatch/cmd/dispatchd/app"
)

func main() {
	if err := app.NewCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
