// Package types provides core types shared across the consultaflow modules.
// This package has ZERO dependencies on other consultaflow packages to avoid
// circular imports. All other packages should import types from here.
package types
