package generate

import "github.com/google/go-cmp/cmp/cmpopts"

// cmpResult ignores the error value, which holds unexported fields.
var cmpResult = cmpopts.IgnoreFields(Result{}, "Err")
