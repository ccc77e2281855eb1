/*
Package extract 将自由文本与请求体 Schema 的属性做规则匹配。

每个属性独立地按固定优先级依次尝试具名规则，首个命中的规则生效：

 1. direct_name: 属性名（小写）出现在文本中，返回按类型的占位探测值
 2. time_window / location / qos: 属性名与文本同时命中关键词，返回待解析哨兵
 3. quoted_string / numeric_literal: 属性名或其分词别名后紧跟引号字符串或数字

未命中的属性不会出现在 Result 中。Value.Kind 区分真实数据（KindExtracted）、
存在性探测（KindDetected）与哨兵（KindNeedsParsing），JSON 输出仅为原始值。
*/
package extract
