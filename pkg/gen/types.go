package gen

import "cmp"

type Ordered = cmp.Ordered
