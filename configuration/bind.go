package configuration

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cast"
	flag "github.com/spf13/pflag"
)

// BoundParameter stores the pointer and the type of values that were bound using the BindParameters function.
type BoundParameter struct {
	Name         string
	boundPointer interface{}
	boundType    reflect.Type
}

// BindParameters defines a flag for every field of the given struct on the flag set and remembers the field, so that
// UpdateBoundParameters can write the merged configuration back into it.
//
// The parameter names are determined by the names of the fields in the struct but they can be overridden by providing a
// name tag. The default value is taken from the default tag, or the current field value if there is none. The usage
// information is taken from the usage tag. Nested structs translate to dotted names: namespace.level2.parameterName.
func (c *Configuration) BindParameters(flagSet *flag.FlagSet, namespace string, pointerToStruct interface{}) {
	val := reflect.ValueOf(pointerToStruct).Elem()
	for i := 0; i < val.NumField(); i++ {
		valueField := val.Field(i)
		typeField := val.Type().Field(i)

		if !typeField.IsExported() {
			continue
		}

		name := namespace + "."
		if tagName, exists := typeField.Tag.Lookup("name"); exists {
			name += tagName
		} else {
			name += lowerCamelCase(typeField.Name)
		}

		shortHand := typeField.Tag.Get("shorthand")
		usage := typeField.Tag.Get("usage")
		tagDefault, hasDefault := typeField.Tag.Lookup("default")
		pointer := valueField.Addr().Interface()

		switch target := pointer.(type) {
		case *bool:
			defaultValue := *target
			if hasDefault {
				defaultValue = cast.ToBool(tagDefault)
			}
			flagSet.BoolVarP(target, name, shortHand, defaultValue, usage)
		case *time.Duration:
			defaultValue := *target
			if hasDefault {
				defaultValue = mustParse(name, tagDefault, cast.ToDurationE)
			}
			flagSet.DurationVarP(target, name, shortHand, defaultValue, usage)
		case *int:
			defaultValue := *target
			if hasDefault {
				defaultValue = mustParse(name, tagDefault, cast.ToIntE)
			}
			flagSet.IntVarP(target, name, shortHand, defaultValue, usage)
		case *int64:
			defaultValue := *target
			if hasDefault {
				defaultValue = mustParse(name, tagDefault, cast.ToInt64E)
			}
			flagSet.Int64VarP(target, name, shortHand, defaultValue, usage)
		case *uint:
			defaultValue := *target
			if hasDefault {
				defaultValue = mustParse(name, tagDefault, cast.ToUintE)
			}
			flagSet.UintVarP(target, name, shortHand, defaultValue, usage)
		case *float64:
			defaultValue := *target
			if hasDefault {
				defaultValue = mustParse(name, tagDefault, cast.ToFloat64E)
			}
			flagSet.Float64VarP(target, name, shortHand, defaultValue, usage)
		case *string:
			defaultValue := *target
			if hasDefault {
				defaultValue = tagDefault
			}
			flagSet.StringVarP(target, name, shortHand, defaultValue, usage)
		case *[]string:
			defaultValue := *target
			if hasDefault {
				defaultValue = nil
				if tagDefault != "" {
					defaultValue = strings.Split(tagDefault, ",")
				}
			}
			flagSet.StringSliceVarP(target, name, shortHand, defaultValue, usage)
		default:
			if valueField.Kind() != reflect.Struct {
				panic(fmt.Sprintf("unsupported parameter type %s of %s", valueField.Type(), name))
			}

			c.BindParameters(flagSet, name, pointer)

			continue
		}

		c.boundParameters[strings.ToLower(name)] = &BoundParameter{
			Name:         name,
			boundPointer: pointer,
			boundType:    valueField.Type(),
		}
	}
}

// UpdateBoundParameters writes the current configuration values into the parameters that were bound using the
// BindParameters method. Keys missing from the configuration leave the field untouched.
func (c *Configuration) UpdateBoundParameters() error {
	for key, parameter := range c.boundParameters {
		if !c.config.Exists(key) {
			continue
		}

		raw := c.config.Get(key)

		var err error
		switch target := parameter.boundPointer.(type) {
		case *bool:
			*target, err = cast.ToBoolE(raw)
		case *time.Duration:
			*target, err = cast.ToDurationE(raw)
		case *int:
			*target, err = cast.ToIntE(raw)
		case *int64:
			*target, err = cast.ToInt64E(raw)
		case *uint:
			*target, err = cast.ToUintE(raw)
		case *float64:
			*target, err = cast.ToFloat64E(raw)
		case *string:
			*target, err = cast.ToStringE(raw)
		case *[]string:
			*target, err = cast.ToStringSliceE(raw)
		}

		if err != nil {
			return errors.Wrapf(err, "invalid value for parameter %s (%s)", parameter.Name, parameter.boundType)
		}
	}

	return nil
}

// BoundParameters returns the names of all bound parameters.
func (c *Configuration) BoundParameters() []string {
	names := make([]string, 0, len(c.boundParameters))
	for _, parameter := range c.boundParameters {
		names = append(names, parameter.Name)
	}

	return names
}

func mustParse[T any](name string, value string, parse func(interface{}) (T, error)) T {
	parsed, err := parse(value)
	if err != nil {
		panic(fmt.Sprintf("invalid default value %q of %s: %s", value, name, err))
	}

	return parsed
}

// lowerCamelCase converts the first rune (or a leading acronym) of the given string to lower case.
func lowerCamelCase(str string) string {
	runes := []rune(str)
	runeCount := len(runes)

	if runeCount == 0 || unicode.IsLower(runes[0]) {
		return str
	}

	runes[0] = unicode.ToLower(runes[0])
	if runeCount == 1 || unicode.IsLower(runes[1]) {
		return string(runes)
	}

	for i := 1; i < runeCount; i++ {
		if i+1 < runeCount && unicode.IsLower(runes[i+1]) {
			break
		}

		runes[i] = unicode.ToLower(runes[i])
	}

	return string(runes)
}
