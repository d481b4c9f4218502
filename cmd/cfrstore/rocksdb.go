//go:build rocksdb

package main

import _ "github.com/timpalpant/cfrstore/rdbstore"
