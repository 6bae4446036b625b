package caller

import (
	"runtime"
	"strings"
)

// Name returns the name of the function or method that *called the
// calling* function.
//
//	func Bar() {
//		callerName := caller.Name()
//		fmt.Println(callerName) // Bar
//	}
//
// -----------------------
//
//	func Foo() {
//		Bar()
//	}
//
//	func Bar() {
//		callerName := caller.Name(1)
//		fmt.Println(callerName) // Foo
//	}
//
// Methods are returned as Type.Method, without the receiver's pointer.
func Name(offsetOpt ...int) string {
	offset := 1
	if len(offsetOpt) > 0 {
		offset += offsetOpt[0]
	}

	pc, _, _, ok := runtime.Caller(offset)
	details := runtime.FuncForPC(pc)
	if !ok || details == nil {
		return ""
	}

	return shortName(details.Name())
}

// shortName turns "github.com/x/y/pkg.(*T).Method.func1" into "T.Method".
func shortName(fullName string) string {
	// the import path may contain dots ("github.com"), drop it first
	if i := strings.LastIndex(fullName, "/"); i >= 0 {
		fullName = fullName[i+1:]
	}

	parts := strings.Split(fullName, ".")

	// closures: drop "func1", "func2", "1", "2" and so on
	for len(parts) > 1 && isClosure(parts[len(parts)-1]) {
		parts = parts[:len(parts)-1]
	}

	switch len(parts) {
	case 0, 1:
		return ""
	case 2:
		return parts[1]
	default:
		typeName := strings.Trim(parts[1], "(*)")
		return typeName + "." + parts[2]
	}
}

func isClosure(part string) bool {
	if strings.HasPrefix(part, "func") {
		return true
	}

	return part != "" && strings.Trim(part, "0123456789") == ""
}
