package di

import (
	"reflect"
	"testing"
)

type greeter struct{ name string }

func TestRegisterAndResolve(t *testing.T) {
	c := NewContainer()
	c.Register("greeter", &greeter{name: "a"})
	c.Register("count", 3)

	g, err := Resolve[*greeter](c, "greeter")
	if err != nil || g.name != "a" {
		t.Fatalf("解析服务失败: %v", err)
	}
	if _, err := Resolve[*greeter](c, "count"); err == nil {
		t.Fatal("类型不符时应该返回错误")
	}
	if _, err := Resolve[*greeter](c, "missing"); err == nil {
		t.Fatal("未注册的服务应该返回错误")
	}

	if got := c.GetNames(); !reflect.DeepEqual(got, []string{"count", "greeter"}) {
		t.Fatalf("服务名称列表错误: %v", got)
	}

	c.Clear()
	if c.Has("greeter") || c.Get("greeter") != nil {
		t.Fatal("清空后不应该还有服务")
	}
}

func TestGetContainerIsSingleton(t *testing.T) {
	if GetContainer() != GetContainer() {
		t.Fatal("GetContainer应该返回相同的实例")
	}
}
