package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectPlatformTable creates a read-only platform table and injects it into
// the Lua state as a global. Call it before loading the settings file.
func InjectPlatformTable(L *lua.LState, info *Info) error {
	platformTable := L.NewTable()

	L.SetField(platformTable, "os", lua.LString(info.OS))
	L.SetField(platformTable, "arch", lua.LString(info.Arch))
	L.SetField(platformTable, "name", lua.LString(info.Platform))
	L.SetField(platformTable, "version", lua.LString(info.Version))

	L.SetField(platformTable, "is_linux", lua.LBool(info.IsLinux()))
	L.SetField(platformTable, "is_macos", lua.LBool(info.IsMacOS()))
	L.SetField(platformTable, "is_windows", lua.LBool(info.IsWindows()))

	if info.IsLinux() && info.Family != "" {
		L.SetField(platformTable, "linux_family", lua.LString(info.Family))
	} else {
		L.SetField(platformTable, "linux_family", lua.LNil)
	}

	// when(condition, value) returns value if condition is true, nil otherwise
	L.SetField(platformTable, "when", L.NewFunction(func(L *lua.LState) int {
		cond := L.CheckBool(1)
		value := L.Get(2)
		if cond {
			L.Push(value)
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}))

	L.SetGlobal("platform", makeReadOnly(L, platformTable))
	return nil
}

// makeReadOnly wraps table in a proxy whose metatable redirects reads and
// rejects writes.
func makeReadOnly(L *lua.LState, table *lua.LTable) *lua.LTable {
	mt := L.NewTable()
	L.SetField(mt, "__index", table)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("platform table is read-only and cannot be modified")
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LString("protected"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
