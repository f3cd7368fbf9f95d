package dynamic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/locator"
	"github.com/chazu/transmute/matcher"
	"github.com/chazu/transmute/stack"
)

func fooClassFile() *classfile.ClassFile {
	cf := classfile.New("Foo", "")
	code := classfile.NewCode()
	code.EmitWithOperand(classfile.OpLoadArg, 0)
	code.Emit(classfile.OpReturnValue)
	echo := classfile.Method{Name: "echo", Params: []string{"int"}, Return: "int", Static: true}
	code.Install(&echo, 1)

	cf.Methods = []classfile.Method{
		echo,
		{Name: "clock", Return: "long", Static: true, Native: true},
	}
	return cf
}

func rebase(t *testing.T, cf *classfile.ClassFile, names MethodNameTransformer) Builder {
	t.Helper()
	binary := classfile.MustMarshal(cf)
	td, err := locator.NewPool(locator.ForBytes(cf.Name, binary)).Describe(cf.Name).Resolve()
	require.NoError(t, err)
	b, err := New().Rebase(td, locator.ForBytes(cf.Name, binary), names)
	require.NoError(t, err)
	return b
}

func TestRebase_MissingBytes(t *testing.T) {
	_, err := New().Rebase(classfile.ForName("Gone"), locator.NoOp, nil)
	assert.ErrorIs(t, err, locator.ErrNotFound)
}

func TestMake_Unchanged(t *testing.T) {
	b := rebase(t, fooClassFile(), nil)
	u, err := b.Make()
	require.NoError(t, err)

	cf, err := classfile.Unmarshal(u.Bytes)
	require.NoError(t, err)
	assert.Len(t, cf.Methods, 2)
	assert.Nil(t, cf.TypeInitializer)
	assert.False(t, u.Initializer("Foo").IsAlive())
	assert.Empty(t, u.Auxiliaries)
}

func TestMake_StubValueKeepsOriginal(t *testing.T) {
	b := rebase(t, fooClassFile(), Suffixing{Suffix: "x"}).
		Method(matcher.MethodNamed("echo")).Intercept(StubValue{})
	u, err := b.Make()
	require.NoError(t, err)

	cf, err := classfile.Unmarshal(u.Bytes)
	require.NoError(t, err)

	original, ok := cf.Method("echo$original$x")
	require.True(t, ok, "original body should be preserved")
	assert.Equal(t, []byte{byte(classfile.OpLoadArg), 0, byte(classfile.OpReturnValue)}, original.Code)

	echo, ok := cf.Method("echo")
	require.True(t, ok)
	assert.Equal(t, []byte{byte(classfile.OpConstI0), byte(classfile.OpReturnValue)}, echo.Code)
	assert.Equal(t, uint16(1), echo.MaxStack)
}

func TestMake_NativePrefixing(t *testing.T) {
	names := NativePrefixing{Prefix: "wrapped_", Fallback: Suffixing{Suffix: "x"}}
	b := rebase(t, fooClassFile(), names).
		Method(matcher.IsNative()).Intercept(StubValue{})
	u, err := b.Make()
	require.NoError(t, err)

	cf, err := classfile.Unmarshal(u.Bytes)
	require.NoError(t, err)
	renamed, ok := cf.Method("wrapped_clock")
	require.True(t, ok)
	assert.True(t, renamed.Native)

	clock, ok := cf.Method("clock")
	require.True(t, ok)
	assert.False(t, clock.Native)
	assert.Equal(t, []byte{byte(classfile.OpConstL0), byte(classfile.OpReturnValue)}, clock.Code)
	assert.Equal(t, uint16(2), clock.MaxStack)
}

func TestMake_InterceptDefinesFieldAndInitializer(t *testing.T) {
	b := rebase(t, fooClassFile(), Suffixing{Suffix: "x"}).
		Method(matcher.MethodNamed("echo")).Intercept(Intercept(func(inv *Invocation) (any, error) {
		return inv.Proceed()
	}))
	u, err := b.Make()
	require.NoError(t, err)

	cf, err := classfile.Unmarshal(u.Bytes)
	require.NoError(t, err)
	f, ok := cf.Field("interceptor$echo")
	require.True(t, ok)
	assert.True(t, f.Static)
	assert.True(t, u.Initializer("Foo").IsAlive())

	echo, _ := cf.Method("echo")
	listing := classfile.DisassembleCode(echo.Code, echo.Constants)
	for _, op := range []string{"GET_STATIC", "LOAD_ARG", "BOX", "CALL_VALUE", "CHECK_CAST", "UNBOX", "RETURN_VALUE"} {
		assert.Contains(t, listing, op)
	}
}

func TestMake_FirstInterceptionWins(t *testing.T) {
	b := rebase(t, fooClassFile(), Suffixing{Suffix: "x"}).
		Method(matcher.MethodNamed("echo")).Intercept(StubValue{}).
		Method(matcher.AnyMethod()).Intercept(FixedValue("7"))
	u, err := b.Make()
	require.NoError(t, err)

	cf, err := classfile.Unmarshal(u.Bytes)
	require.NoError(t, err)
	echo, _ := cf.Method("echo")
	assert.Equal(t, []byte{byte(classfile.OpConstI0), byte(classfile.OpReturnValue)}, echo.Code)
	clock, _ := cf.Method("clock")
	assert.Contains(t, clock.Constants, "7")
}

func TestBuilder_IsImmutable(t *testing.T) {
	base := rebase(t, fooClassFile(), nil)
	withField := base.DefineField("a", "int")
	_ = base.DefineField("b", "int")

	u, err := withField.Make()
	require.NoError(t, err)
	cf, err := classfile.Unmarshal(u.Bytes)
	require.NoError(t, err)
	require.Len(t, cf.Fields, 1)
	assert.Equal(t, "a", cf.Fields[0].Name)

	u, err = base.Make()
	require.NoError(t, err)
	cf, err = classfile.Unmarshal(u.Bytes)
	require.NoError(t, err)
	assert.Empty(t, cf.Fields)
}

func TestMake_TypeInitializerAppliesToAuxiliaries(t *testing.T) {
	withInit := fooClassFile()
	code := classfile.NewCode()
	code.EmitConstant(classfile.OpConst, "hi")
	code.EmitConstant(classfile.OpPutStatic, "greeting")
	code.Emit(classfile.OpReturn)
	withInit.Fields = []classfile.Field{{Name: "greeting", Type: "String", Static: true}}
	withInit.TypeInitializer = &classfile.Method{Name: classfile.TypeInitializerName, Return: "void", Static: true}
	code.Install(withInit.TypeInitializer, 1)

	aux := classfile.New("Foo$Helper", "")
	auxInit := StaticField{Field: "x", Value: int32(1)}

	u, err := rebase(t, withInit, nil).
		WithTypeInitializer(stack.NexusBootstrap{}).
		WithAuxiliary(aux, auxInit).
		Make()
	require.NoError(t, err)

	cf, err := classfile.Unmarshal(u.Bytes)
	require.NoError(t, err)
	require.NotNil(t, cf.TypeInitializer)
	assert.Equal(t, byte(classfile.OpNexus), cf.TypeInitializer.Code[0])
	assert.Equal(t, []string{"hi", "greeting"}, cf.TypeInitializer.Constants)

	require.Len(t, u.Auxiliaries, 1)
	assert.Equal(t, "Foo$Helper", u.Auxiliaries[0].Name())
	acf, err := classfile.Unmarshal(u.Auxiliaries[0].Bytes)
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(classfile.OpNexus), byte(classfile.OpReturn)}, acf.TypeInitializer.Code)
	assert.Equal(t, auxInit, u.Initializer("Foo$Helper"))
}

func TestMake_AuxiliaryTypeInitializerSkipsPrimary(t *testing.T) {
	aux := classfile.New("Foo$Helper", "")

	u, err := rebase(t, fooClassFile(), nil).
		WithAuxiliaryTypeInitializer(stack.NexusBootstrap{}).
		WithAuxiliary(aux, StaticField{Field: "x", Value: int32(1)}).
		Make()
	require.NoError(t, err)

	cf, err := classfile.Unmarshal(u.Bytes)
	require.NoError(t, err)
	assert.Nil(t, cf.TypeInitializer)

	require.Len(t, u.Auxiliaries, 1)
	acf, err := classfile.Unmarshal(u.Auxiliaries[0].Bytes)
	require.NoError(t, err)
	require.NotNil(t, acf.TypeInitializer)
	assert.Equal(t, []byte{byte(classfile.OpNexus), byte(classfile.OpReturn)}, acf.TypeInitializer.Code)
}

type failingImpl struct{}

func (failingImpl) Implement(*Target) (stack.Manipulation, error) {
	return nil, errors.New("no can do")
}

func TestMake_Failures(t *testing.T) {
	_, err := rebase(t, fooClassFile(), nil).Method(matcher.AnyMethod()).Intercept(failingImpl{}).Make()
	assert.ErrorContains(t, err, "no can do")

	clash := Suffixing{Suffix: "x"}
	cf := fooClassFile()
	cf.Methods = append(cf.Methods, classfile.Method{Name: "echo$original$x", Return: "void", Static: true, Code: []byte{byte(classfile.OpReturn)}})
	_, err = rebase(t, cf, clash).Method(matcher.MethodNamed("echo")).Intercept(StubValue{}).Make()
	assert.ErrorContains(t, err, "cannot rename")

	_, err = Builder{}.Make()
	assert.Error(t, err)
}
