package validate_test

import (
	"testing"

	"github.com/ardanlabs/blocknode/foundation/validate"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type node struct {
	Port      int `json:"port" validate:"min=1,max=65535"`
	ScanRange int `json:"scan_range" validate:"min=0,max=64"`
}

func Test_Check(t *testing.T) {
	type table struct {
		name   string
		val    any
		fields []string
	}

	tt := []table{
		{name: "valid", val: node{Port: 7878, ScanRange: 2}},
		{name: "pointer", val: &node{Port: 7878}},
		{name: "port", val: node{Port: 0, ScanRange: 2}, fields: []string{"port"}},
		{name: "both", val: node{Port: 70000, ScanRange: 100}, fields: []string{"port", "scan_range"}},
		{name: "not-struct", val: []string{"a"}},
	}

	t.Log("Given the need to validate tagged values.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				err := validate.Check(tst.val)

				if len(tst.fields) == 0 {
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould pass validation: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould pass validation.", success, testID)
					return
				}

				fe := validate.GetFieldErrors(err)
				if fe == nil {
					t.Fatalf("\t%s\tTest %d:\tShould get field errors: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould get field errors.", success, testID)

				fields := fe.Fields()
				for _, name := range tst.fields {
					if _, exists := fields[name]; !exists {
						t.Errorf("\t%s\tTest %d:\tShould have an error for field %q: %v", failed, testID, name, fields)
					}
				}
			}

			t.Run(tst.name, f)
		}
	}
}
