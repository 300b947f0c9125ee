package loader

import (
	"github.com/coreos/go-semver/semver"

	"github.com/ProtonOS/ProtonOS-sub008/errors"
)

// CheckVersionCompatible enforces cross-assembly version compatibility when
// a module loads a reference to another module by name: the referencing
// module declares the minimum version it was built against, and the
// resolved module must be the same major version and at least that
// minor/patch. Grounded on the teacher's engine.findLowerDef, which matches
// a WASI host-function import against the newest compatible semver-tagged
// definition; retargeted here from host-function binding to module
// cross-reference binding.
func CheckVersionCompatible(have, want string) error {
	haveV, err := semver.NewVersion(have)
	if err != nil {
		return errors.TypeLoadFailed(have, "module version is not valid semver: "+err.Error())
	}
	wantV, err := semver.NewVersion(want)
	if err != nil {
		return errors.TypeLoadFailed(want, "required version is not valid semver: "+err.Error())
	}

	if haveV.Major != wantV.Major {
		return errors.TypeLoadFailed(have, "major version mismatch: have "+have+", want "+want)
	}
	if haveV.LessThan(*wantV) {
		return errors.TypeLoadFailed(have, "module version "+have+" is older than required "+want)
	}
	return nil
}

// ResolveCompatible is like (*Namespace).Resolve but additionally enforces
// that the bound module's version satisfies want, raising TypeLoadFailed
// otherwise (spec.md section 4.B: resolution failures raise TypeLoadFailed
// or MissingMember).
func (ns *Namespace) ResolveCompatible(path, want string) (*ModuleHandle, error) {
	h := ns.Resolve(path)
	if h == nil {
		return nil, errors.TypeLoadFailed(path, "referenced module is not loaded")
	}
	if want != "" {
		if err := CheckVersionCompatible(h.Version, want); err != nil {
			return nil, err
		}
	}
	return h, nil
}
