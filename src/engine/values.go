package engine

// valueMap keeps field values in schema order.
type valueMap struct {
	keys []string
	m    map[string]interface{}
}

func newValueMap(capacity int) *valueMap {
	return &valueMap{
		keys: make([]string, 0, capacity),
		m:    make(map[string]interface{}, capacity),
	}
}

func (v *valueMap) get(key string) (interface{}, bool) {
	val, ok := v.m[key]
	return val, ok
}

func (v *valueMap) set(key string, val interface{}) {
	if _, ok := v.m[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.m[key] = val
}

func (v *valueMap) del(key string) {
	if _, ok := v.m[key]; !ok {
		return
	}
	delete(v.m, key)
	for i, k := range v.keys {
		if k == key {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			return
		}
	}
}

func (v *valueMap) each(fn func(key string, val interface{}) error) error {
	for _, k := range v.keys {
		if err := fn(k, v.m[k]); err != nil {
			return err
		}
	}
	return nil
}
