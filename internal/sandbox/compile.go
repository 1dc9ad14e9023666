package sandbox

import (
	"errors"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/golang/groupcache/lru"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
)

const (
	bodyPrefix = "(async function () {\"use strict\";\n"
	bodySuffix = "\n})"
)

// compiler turns script text into programs that evaluate to a function
// taking the global scope as argument and `this` as receiver. Programs do
// not capture any scope, so one cached program serves every evaluation of
// the same text.
type compiler struct {
	cache   *lru.Cache
	metrics *monitoring.Metrics
}

func newCompiler(size int, metrics *monitoring.Metrics) *compiler {
	return &compiler{cache: lru.New(size), metrics: metrics}
}

func (c *compiler) compile(script string) (*goja.Program, error) {
	key := strings.TrimSpace(script)
	if p, ok := c.cache.Get(key); ok {
		c.metrics.RecordCompile(true)
		return p.(*goja.Program), nil
	}
	c.metrics.RecordCompile(false)

	body := scriptBody(key)
	if err := checkSyntax(body); err != nil {
		return nil, err
	}

	src := "(function (globals) { with (globals) { return " + bodyPrefix + body + bodySuffix + ".call(this); } })"
	prg, err := goja.Compile("script", src, false)
	if err != nil {
		return nil, syntaxFault(err)
	}
	c.cache.Add(key, prg)
	return prg, nil
}

// scriptBody accepts a block `{ ... }` as a function body and treats
// anything else as an expression to return.
func scriptBody(script string) string {
	if strings.HasPrefix(script, "{") && strings.HasSuffix(script, "}") {
		return script
	}
	return "return (" + script + "\n);"
}

// checkSyntax parses body inside its async function and requires that the
// function literal is all there is, so a body cannot close the function
// early and append code of its own.
func checkSyntax(body string) error {
	prg, err := parser.ParseFile(nil, "script", bodyPrefix+body+bodySuffix, 0)
	if err != nil {
		return syntaxFault(err)
	}
	if len(prg.Body) == 1 {
		if stmt, ok := prg.Body[0].(*ast.ExpressionStatement); ok {
			if fn, ok := stmt.Expression.(*ast.FunctionLiteral); ok && fn.Async {
				return nil
			}
		}
	}
	return fault(ErrScriptFault, "Unexpected token: script must be an expression or a block")
}

func syntaxFault(err error) error {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return fault(ErrScriptFault, "%s", list[0].Message)
	}
	var pe *parser.Error
	if errors.As(err, &pe) {
		return fault(ErrScriptFault, "%s", pe.Message)
	}
	var ce *goja.CompilerSyntaxError
	if errors.As(err, &ce) {
		return fault(ErrScriptFault, "%s", ce.Message)
	}
	return fault(ErrScriptFault, "%s", err.Error())
}
